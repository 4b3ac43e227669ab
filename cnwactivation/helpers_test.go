package cnwactivation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

const (
	testProductID  = "3f1c7d2e-8a4b-4c6d-9e0f-1a2b3c4d5e6f"
	testLicenseKey = "ABCD-EFGH-IJKL-MNOP-QRST"
	testDeviceID   = "device-fingerprint-1"
)

var testEpoch = time.Unix(1_700_000_000, 0)

// fakeSystem is a fixed SystemInfo.
type fakeSystem struct {
	fingerprint string
}

func (s fakeSystem) Fingerprint() string { return s.fingerprint }
func (fakeSystem) OSName() string        { return "linux" }
func (fakeSystem) OSVersion() string     { return "6.1" }
func (fakeSystem) VMName() string        { return "" }
func (fakeSystem) Hostname() string      { return "node-1" }
func (fakeSystem) User() string          { return "operator" }

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// signer issues activation tokens for tests.
type signer struct {
	priv      ed25519.PrivateKey
	publicKey string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &signer{priv: priv, publicKey: base64.StdEncoding.EncodeToString(pub)}
}

func (s *signer) sign(t *testing.T, p ActivationPayload) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, payloadClaims{p}).SignedString(s.priv)
	require.NoError(t, err)
	return token
}

// basePayload is a valid, unexpired activation for the test product, key
// and device, issued at now.
func basePayload(now time.Time) ActivationPayload {
	return ActivationPayload{
		ID:                 "act-001",
		ProductID:          testProductID,
		Key:                testLicenseKey,
		Fingerprint:        HashString(testDeviceID),
		IssuedAt:           now.Unix(),
		AllowedClockOffset: 300,
		ExpiresAt:          now.Add(time.Hour).Unix(),
		Type:               LicenseTypeNodeLocked,
		Email:              "ada@example.com",
		Name:               "Ada",
		Company:            "Analytical Engines",
		LicenseMetadata:    []Metadata{{Key: "Tier", Value: "gold"}},
		UserMetadata:       []Metadata{{Key: "seat", Value: "42"}},
		LicenseMeterAttributes: []LicenseMeterAttribute{
			{Name: "api_calls", AllowedUses: 100, TotalUses: 10},
		},
	}
}

// fakeTransport scripts server responses.
type fakeTransport struct {
	create func(body []byte) (*Response, error)
	update func(id string, body []byte) (*Response, error)
	del    func(id string) (*Response, error)
	get    func(path string, query url.Values) (*Response, error)

	creates atomic.Int32
	updates atomic.Int32
	deletes atomic.Int32
}

var errNoNetwork = errors.New("dial tcp: connection refused")

func (f *fakeTransport) CreateActivation(_ context.Context, body []byte) (*Response, error) {
	f.creates.Add(1)
	if f.create == nil {
		return nil, errNoNetwork
	}
	return f.create(body)
}

func (f *fakeTransport) UpdateActivation(_ context.Context, id string, body []byte) (*Response, error) {
	f.updates.Add(1)
	if f.update == nil {
		return nil, errNoNetwork
	}
	return f.update(id, body)
}

func (f *fakeTransport) DeleteActivation(_ context.Context, id string) (*Response, error) {
	f.deletes.Add(1)
	if f.del == nil {
		return nil, errNoNetwork
	}
	return f.del(id)
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values) (*Response, error) {
	if f.get == nil {
		return nil, errNoNetwork
	}
	return f.get(path, query)
}

func jsonResponse(code int, body string) (*Response, error) {
	return &Response{StatusCode: code, Body: []byte(body)}, nil
}

// failingProvider fails writes once failStore is set.
type failingProvider struct {
	*persistence.MemoryProvider
	failStore atomic.Bool
}

func (p *failingProvider) Store(ctx context.Context, key, value string) error {
	if p.failStore.Load() {
		return errors.New("disk full")
	}
	return p.MemoryProvider.Store(ctx, key, value)
}

// newTestValidator wires a validator over an in-memory store.
func newTestValidator(t *testing.T, clock *fakeClock) (*validator, *dataStore) {
	t.Helper()
	store := newDataStore(persistence.NewMemoryProvider())
	return &validator{
		store:    store,
		verifier: JWTVerifier{},
		system:   fakeSystem{fingerprint: testDeviceID},
		now:      clock.Now,
		logger:   zerolog.Nop(),
	}, store
}
