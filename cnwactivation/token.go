package cnwactivation

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks an activation token's signature and returns its claims.
type TokenVerifier interface {
	Verify(token, publicKey string) (*ActivationPayload, error)
}

// HashString returns the lowercase hex SHA-256 of s. It is the one-way
// function used for storage keys, fingerprints and user identity.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var validTokenMethods = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

// JWTVerifier verifies activation tokens signed with RSA (RS256/384/512)
// or Ed25519. RSA keys are PEM; Ed25519 keys are PEM or base64 raw bytes.
//
// Registered claims (exp, nbf) are not enforced here: an expired license
// still has to verify so the caller can report it as expired.
type JWTVerifier struct{}

// Verify implements TokenVerifier.
func (JWTVerifier) Verify(token, publicKey string) (*ActivationPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(publicKey) == "" {
		return nil, ErrPublicKeyInvalid
	}

	claims := &payloadClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods(validTokenMethods),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKey))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPublicKeyInvalid, err)
			}
			return key, nil
		case *jwt.SigningMethodEd25519:
			return decodeEd25519PublicKey(publicKey)
		default:
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPublicKeyInvalid):
			return nil, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}

	payload := claims.ActivationPayload
	return &payload, nil
}

// decodeEd25519PublicKey accepts a PEM block or base64 (standard or URL-safe)
// raw key bytes.
func decodeEd25519PublicKey(encoded string) (ed25519.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "-----BEGIN") {
		key, err := jwt.ParseEdPublicKeyFromPEM([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPublicKeyInvalid, err)
		}
		edKey, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an Ed25519 key", ErrPublicKeyInvalid)
		}
		return edKey, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: base64 decode: %v", ErrPublicKeyInvalid, err)
		}
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key length %d, expected %d", ErrPublicKeyInvalid, len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

// payloadClaims adapts ActivationPayload to jwt.Claims. The registered-claim
// getters report nothing because time checks belong to the validator.
type payloadClaims struct {
	ActivationPayload
}

func (payloadClaims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (payloadClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (payloadClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (payloadClaims) GetIssuer() (string, error)                   { return "", nil }
func (payloadClaims) GetSubject() (string, error)                  { return "", nil }
func (payloadClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
