package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/chirpline/backend/internal/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTokenProvider builds a JWTProvider backed by a freshly generated
// RSA key, for tests that need real sign/verify round-trips without a
// fixture key checked into the repo.
func newTestTokenProvider(t *testing.T) *auth.JWTProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	provider, err := auth.NewJWTProvider(string(pemBytes), "chirpline-test", "chirpline-test-clients")
	require.NoError(t, err)
	return provider
}

func TestJWTProvider_GenerateAndValidateRoundTrip(t *testing.T) {
	provider := newTestTokenProvider(t)
	userID := uuid.New()

	tokenString, err := provider.GenerateAccessToken(userID, "Grace Hopper", "ghopper")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := provider.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Grace Hopper", claims.DisplayName)
	assert.Equal(t, "ghopper", claims.Username)
}

func TestJWTProvider_RejectsTamperedToken(t *testing.T) {
	provider := newTestTokenProvider(t)
	tokenString, err := provider.GenerateAccessToken(uuid.New(), "X", "x")
	require.NoError(t, err)

	tampered := tokenString[:len(tokenString)-2] + "zz"
	_, err = provider.ValidateToken(tampered)
	assert.Error(t, err)
}

func TestJWTProvider_RejectsTokenSignedByOtherKey(t *testing.T) {
	provider := newTestTokenProvider(t)
	other := newTestTokenProvider(t)

	tokenString, err := other.GenerateAccessToken(uuid.New(), "Y", "y")
	require.NoError(t, err)

	_, err = provider.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestJWTProvider_GetJWKSExposesPublicKey(t *testing.T) {
	provider := newTestTokenProvider(t)
	jwks, err := provider.GetJWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "RS256", jwks.Keys[0].Alg)
}
