package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// accessTokenTTL and leeway implement spec.md §3's AccessCredential
// invariants: a short-lived token with a uniform clock-skew tolerance
// applied to ExpiresAt, IssuedAt and NotBefore alike.
const (
	accessTokenTTL = 3 * time.Minute
	clockLeeway    = 15 * time.Second
)

// TokenProvider defines the contract for generating and validating access
// credentials (component A).
type TokenProvider interface {
	GenerateAccessToken(userID uuid.UUID, displayName, username string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	GetJWKS() (*JWKS, error)
}

// Claims defines the AccessCredential's wire shape (spec.md §3).
type Claims struct {
	UserID      uuid.UUID `json:"sub"`
	DisplayName string    `json:"displayName"`
	Username    string    `json:"username"`
	jwt.RegisteredClaims
}

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWTProvider implements TokenProvider using RSA-SHA256 (RS256).
type JWTProvider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	kid        string
}

// NewJWTProvider creates a new token provider. privateKeyPEM must be the
// content of an RSA PRIVATE KEY (PKCS1 or PKCS8), not a filename.
func NewJWTProvider(privateKeyPEM, issuer, audience string) (*JWTProvider, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the private key")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("failed to parse private key: %v / %v", err, err2)
		}
		var ok bool
		priv, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not of type *rsa.PrivateKey")
		}
	}

	return &JWTProvider{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		issuer:     issuer,
		audience:   audience,
		kid:        "sig-1",
	}, nil
}

// GenerateAccessToken creates a signed JWT for the user.
func (p *JWTProvider) GenerateAccessToken(userID uuid.UUID, displayName, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		Username:    username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-clockLeeway)),
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies the JWT, applying the uniform clock
// leeway spec.md §9 requires on top of the library's own ExpiresAt check.
func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.publicKey, nil
	}, jwt.WithLeeway(clockLeeway))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetJWKS returns the JSON Web Key Set for the public key.
func (p *JWTProvider) GetJWKS() (*JWKS, error) {
	eBuf := big.NewInt(int64(p.publicKey.E)).Bytes()
	e := base64.RawURLEncoding.EncodeToString(eBuf)
	n := base64.RawURLEncoding.EncodeToString(p.publicKey.N.Bytes())

	return &JWKS{
		Keys: []JWK{{
			Kty: "RSA",
			Kid: p.kid,
			Use: "sig",
			N:   n,
			E:   e,
			Alg: "RS256",
		}},
	}, nil
}
