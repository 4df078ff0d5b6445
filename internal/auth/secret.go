package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// generateRefreshSecret produces the 48-byte raw secret spec.md §3's
// RefreshRecord invariants require, hex-encoded to a 96-character string.
func generateRefreshSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashRefresh computes a keyed HMAC-SHA256 digest of a raw refresh secret
// using a server-held pepper, for at-rest storage and lookup.
//
// The teacher's equivalent (recovery.go's hashToken) uses a bare, unkeyed
// sha256.Sum256. That lets anyone with read access to the refresh table
// test guesses against the hash offline. Keying the hash with a pepper
// that lives only in server configuration closes that gap while staying
// deterministic and constant-time comparable, which is all component B's
// lookup-by-hash needs.
func hashRefresh(pepper, secret string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
