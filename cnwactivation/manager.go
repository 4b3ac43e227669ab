package cnwactivation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

// Manager is the entry point for one product's license: it activates and
// deactivates, answers "is this app licensed", exposes the license claims,
// reconciles meter attributes with the server and keeps the activation in
// sync in the background.
//
// A Manager is safe for concurrent use. Foreground calls and background
// sync ticks are serialised by one mutex.
type Manager struct {
	productID     string
	store         *dataStore
	validator     *validator
	service       *activationService
	transport     Transport
	system        SystemInfo
	verifier      TokenVerifier
	appVersion    string
	clientVersion string
	logger        zerolog.Logger
	metrics       *Metrics
	now           func() time.Time
	syncDelay     time.Duration
	intervalUnit  time.Duration // scales ServerSyncInterval; seconds outside tests

	// ctx bounds background ticks; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	publicKey  string
	licenseKey licenseKeyCell
	payload    *ActivationPayload
	callback   func(Status)
	timer      *syncTimer
}

// licenseKeyCell caches the license key once loaded or set.
type licenseKeyCell struct {
	value   string
	present bool
}

// NewManager creates a Manager for productID persisting through store. The
// caller keeps ownership of store and closes it after Close.
func NewManager(productID string, store persistence.Provider, opts ...ManagerOption) (*Manager, error) {
	if !ValidateProductID(productID) {
		return nil, misuse(ErrInvalidProductID)
	}
	if store == nil {
		return nil, errors.New("persistence provider is required")
	}

	m := &Manager{
		productID:     productID,
		store:         newDataStore(store),
		clientVersion: ClientVersion,
		logger:        zerolog.Nop(),
		now:           time.Now,
		syncDelay:     DefaultServerSyncDelay,
		intervalUnit:  time.Second,
		payload:       &ActivationPayload{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		return nil, errors.New("transport is required: use WithTransport")
	}
	if m.verifier == nil {
		m.verifier = JWTVerifier{}
	}
	if m.system == nil {
		system, err := NewHostSystemInfo(context.Background())
		if err != nil {
			return nil, fmt.Errorf("collect host identity: %w", err)
		}
		m.system = system
	}

	m.logger = m.logger.With().Str("component", "cnwactivation").Logger()
	m.validator = &validator{
		store:    m.store,
		verifier: m.verifier,
		system:   m.system,
		now:      m.now,
		logger:   m.logger,
		metrics:  m.metrics,
	}
	m.service = &activationService{
		store:         m.store,
		validator:     m.validator,
		transport:     m.transport,
		system:        m.system,
		appVersion:    m.appVersion,
		clientVersion: m.clientVersion,
		logger:        m.logger,
		metrics:       m.metrics,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// ProductID returns the product this Manager licenses.
func (m *Manager) ProductID() string {
	return m.productID
}

// SetPublicKey sets the key activation tokens are verified with: a PEM
// RSA/Ed25519 public key or a base64 Ed25519 key. It must be called on
// every start before any license operation.
func (m *Manager) SetPublicKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return misuse(ErrPublicKeyInvalid)
	}
	m.mu.Lock()
	m.publicKey = key
	m.mu.Unlock()
	return nil
}

// SetPublicKeyFile reads the public key from path.
func (m *Manager) SetPublicKeyFile(path string) error {
	raw, err := readBoundedFile(path, maxPublicKeyBytes)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to read public key file")
		return misuse(ErrPublicKeyFile)
	}
	return m.SetPublicKey(string(raw))
}

// SetLicenseCallback sets the function receiving background sync results.
// Without a callback no background sync runs. The callback runs on the sync
// goroutine and may call back into the Manager.
func (m *Manager) SetLicenseCallback(callback func(Status)) {
	m.mu.Lock()
	m.callback = callback
	m.mu.Unlock()
}

// SetLicenseKey validates and persists the license key used for activation.
func (m *Manager) SetLicenseKey(ctx context.Context, key string) error {
	if !ValidateLicenseKey(key) {
		return misuse(ErrInvalidLicenseKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, m.productID, keyLicenseKey, key); err != nil {
		return storageError(err)
	}
	m.licenseKey = licenseKeyCell{value: key, present: true}
	return nil
}

// LicenseKey returns the license key, loading it from storage if needed.
func (m *Manager) LicenseKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLicenseKey(ctx)
}

// loadLicenseKey must be called with m.mu held.
func (m *Manager) loadLicenseKey(ctx context.Context) (string, error) {
	if m.licenseKey.present {
		return m.licenseKey.value, nil
	}
	key, ok, err := m.store.Get(ctx, m.productID, keyLicenseKey)
	if err != nil {
		return "", storageError(err)
	}
	if !ok {
		return "", misuse(ErrLicenseKeyNotSet)
	}
	m.licenseKey = licenseKeyCell{value: key, present: true}
	return key, nil
}

// ActivateLicense activates the license key with the server and stores the
// signed activation token. On success the background sync starts with the
// license's sync interval as both delay and period.
func (m *Manager) ActivateLicense(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publicKey == "" {
		return StatusEPublicKey, misuse(ErrPublicKeyNotSet)
	}
	key, err := m.loadLicenseKey(ctx)
	if err != nil {
		s, _ := StatusOf(err)
		return s, err
	}

	m.payload = &ActivationPayload{}
	status := m.service.activateFromServer(ctx, m.productID, key, m.publicKey, m.payload, nil, false)
	if !status.IsSuccess() {
		m.logger.Warn().Str("product_id", m.productID).Stringer("status", status).Msg("License activation failed")
		return status, statusError(status)
	}
	m.logger.Info().Str("product_id", m.productID).Str("activation_id", m.payload.ID).Stringer("status", status).Msg("License activated")

	interval := m.syncInterval()
	m.startTimer(interval, interval)
	return status, nil
}

// DeactivateLicense releases this device's activation slot on the server
// and clears the local license state.
func (m *Manager) DeactivateLicense(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.isLicenseValid(ctx)
	if !status.IsSuccess() {
		return status, errorFor(status)
	}
	status = m.service.deactivateFromServer(ctx, m.productID, m.payload)
	if status != StatusOK {
		return status, statusError(status)
	}
	m.stopTimer()
	m.licenseKey = licenseKeyCell{}
	m.logger.Info().Str("product_id", m.productID).Msg("License deactivated")
	return StatusOK, nil
}

// IsLicenseGenuine reports whether the app is activated, verifying the
// cached token offline. On a success-family result it schedules a
// background server sync shortly after the call.
//
// OK, EXPIRED, SUSPENDED, GRACE_PERIOD_OVER and FAIL come back with a nil
// error. Any other status indicates misconfiguration and is also returned
// as an error.
func (m *Manager) IsLicenseGenuine(ctx context.Context) (Status, error) {
	m.mu.Lock()
	status := m.isLicenseValid(ctx)
	if status.IsSuccess() && m.payload.ServerSyncInterval != 0 {
		m.startTimer(m.syncDelay, m.syncInterval())
	}
	m.mu.Unlock()

	switch status {
	case StatusOK, StatusExpired, StatusSuspended, StatusGracePeriodOver, StatusFail:
		return status, nil
	}
	return status, errorFor(status)
}

// IsLicenseValid is IsLicenseGenuine without the server sync.
func (m *Manager) IsLicenseValid(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLicenseValid(ctx)
}

// isLicenseValid must be called with m.mu held.
func (m *Manager) isLicenseValid(ctx context.Context) Status {
	if !m.validator.ValidateSystemTime(ctx, m.productID) {
		return StatusETimeModified
	}
	token, ok, err := m.store.Get(ctx, m.productID, keyActivationToken)
	if err != nil {
		m.logger.Error().Err(err).Str("product_id", m.productID).Msg("Failed to read activation token")
		return StatusEStorage
	}
	if !ok {
		return StatusFail
	}
	if m.payload.Valid() {
		status := m.validator.ValidateActivationStatus(ctx, m.productID, m.payload)
		m.metrics.recordValidation(status)
		return status
	}
	if m.publicKey == "" {
		return StatusEPublicKey
	}
	key, err := m.loadLicenseKey(ctx)
	if err != nil {
		s, _ := StatusOf(err)
		return s
	}
	m.payload = &ActivationPayload{}
	return m.validator.ValidateActivation(ctx, token, m.publicKey, key, m.productID, m.payload)
}

// GetLicenseMetadata returns the license metadata value for key.
func (m *Manager) GetLicenseMetadata(ctx context.Context, key string) (string, error) {
	return m.metadata(ctx, key, func(p *ActivationPayload) []Metadata { return p.LicenseMetadata })
}

// GetLicenseUserMetadata returns the license user's metadata value for key.
func (m *Manager) GetLicenseUserMetadata(ctx context.Context, key string) (string, error) {
	return m.metadata(ctx, key, func(p *ActivationPayload) []Metadata { return p.UserMetadata })
}

func (m *Manager) metadata(ctx context.Context, key string, list func(*ActivationPayload) []Metadata) (string, error) {
	p, err := m.validPayload(ctx)
	if err != nil {
		return "", err
	}
	value, ok := findMetadata(key, list(p))
	if !ok {
		return "", statusError(StatusEMetadataKeyNotFound)
	}
	return value, nil
}

// GetLicenseMeterAttribute returns the allowed and total uses of a license
// meter attribute.
func (m *Manager) GetLicenseMeterAttribute(ctx context.Context, name string) (LicenseMeterAttribute, error) {
	p, err := m.validPayload(ctx)
	if err != nil {
		return LicenseMeterAttribute{}, err
	}
	attr, ok := findLicenseMeterAttribute(name, p.LicenseMeterAttributes)
	if !ok {
		return LicenseMeterAttribute{}, statusError(StatusEMeterAttributeNotFound)
	}
	return attr, nil
}

// GetLicenseExpiryDate returns when the license expires. The zero Time
// means it never does.
func (m *Manager) GetLicenseExpiryDate(ctx context.Context) (time.Time, error) {
	p, err := m.validPayload(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if p.ExpiresAt == 0 {
		return time.Time{}, nil
	}
	return time.Unix(p.ExpiresAt, 0).UTC(), nil
}

func (m *Manager) GetLicenseUserEmail(ctx context.Context) (string, error) {
	return m.field(ctx, func(p *ActivationPayload) string { return p.Email })
}

func (m *Manager) GetLicenseUserName(ctx context.Context) (string, error) {
	return m.field(ctx, func(p *ActivationPayload) string { return p.Name })
}

func (m *Manager) GetLicenseUserCompany(ctx context.Context) (string, error) {
	return m.field(ctx, func(p *ActivationPayload) string { return p.Company })
}

// GetLicenseType returns LicenseTypeNodeLocked or LicenseTypeHostedFloating.
func (m *Manager) GetLicenseType(ctx context.Context) (string, error) {
	return m.field(ctx, func(p *ActivationPayload) string { return p.Type })
}

func (m *Manager) field(ctx context.Context, get func(*ActivationPayload) string) (string, error) {
	p, err := m.validPayload(ctx)
	if err != nil {
		return "", err
	}
	return get(p), nil
}

// validPayload re-validates the license and returns a snapshot of the
// payload for read-only use.
func (m *Manager) validPayload(ctx context.Context) (*ActivationPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.isLicenseValid(ctx)
	if !status.IsSuccess() {
		return nil, errorFor(status)
	}
	snapshot := *m.payload
	return &snapshot, nil
}

// Close stops the background sync. It does not close the persistence
// provider, and it may be called from the license callback.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	m.stopTimer()
	m.mu.Unlock()
}

// syncInterval must be called with m.mu held.
func (m *Manager) syncInterval() time.Duration {
	return time.Duration(m.payload.ServerSyncInterval) * m.intervalUnit
}

// errorFor converts a failure status into the error a caller sees. Missing
// configuration surfaces as the matching misuse sentinel.
func errorFor(s Status) error {
	switch s {
	case StatusEPublicKey:
		return misuse(ErrPublicKeyNotSet)
	case StatusELicenseKey:
		return misuse(ErrLicenseKeyNotSet)
	}
	return statusError(s)
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", statusError(StatusEStorage), err)
}
