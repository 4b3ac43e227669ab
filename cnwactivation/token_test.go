package cnwactivation

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func pemPublicKey(t *testing.T, pub interface{}) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestHashString(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashString("abc"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestJWTVerifier_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := payloadClaims{ActivationPayload{ID: "act-rsa", Key: "KEY-123456", ExpiresAt: 1}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := JWTVerifier{}.Verify(token, pemPublicKey(t, &key.PublicKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "act-rsa" || p.Key != "KEY-123456" {
		t.Errorf("unexpected claims: %+v", p)
	}
	if p.Valid() {
		t.Error("verifier output must not be marked valid")
	}
}

func TestJWTVerifier_Ed25519PEMAndBase64(t *testing.T) {
	s := newSigner(t)
	token := s.sign(t, ActivationPayload{ID: "act-ed"})

	if _, err := (JWTVerifier{}).Verify(token, s.publicKey); err != nil {
		t.Errorf("base64 key: unexpected error: %v", err)
	}
	pemKey := pemPublicKey(t, s.priv.Public().(ed25519.PublicKey))
	if _, err := (JWTVerifier{}).Verify(token, pemKey); err != nil {
		t.Errorf("PEM key: unexpected error: %v", err)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	token := s.sign(t, ActivationPayload{ID: "act-ed"})

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payloadClaims{}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		publicKey string
		want      error
	}{
		{"wrong key", token, other.publicKey, ErrSignatureInvalid},
		{"tampered", token[:len(token)-4] + "AAAA", s.publicKey, ErrSignatureInvalid},
		{"hmac algorithm", hmacToken, s.publicKey, ErrSignatureInvalid},
		{"malformed", "not-a-token", s.publicKey, ErrTokenMalformed},
		{"empty token", "", s.publicKey, ErrTokenMalformed},
		{"empty key", token, "", ErrPublicKeyInvalid},
		{"short key", token, "c2hvcnQ=", ErrPublicKeyInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JWTVerifier{}.Verify(tt.token, tt.publicKey)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
