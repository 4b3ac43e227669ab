package cnwactivation

import (
	"time"

	"github.com/rs/zerolog"
)

// ClientVersion identifies this SDK to the licensing server.
const ClientVersion = "1.0.0"

// DefaultServerSyncDelay is how long IsLicenseGenuine waits before the first
// background server sync.
const DefaultServerSyncDelay = 10 * time.Second

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTransport sets the transport used to reach the licensing server.
// Required.
func WithTransport(t Transport) ManagerOption {
	return func(m *Manager) {
		m.transport = t
	}
}

// WithSystemInfo replaces the host identity. Default: NewHostSystemInfo.
func WithSystemInfo(s SystemInfo) ManagerOption {
	return func(m *Manager) {
		m.system = s
	}
}

// WithTokenVerifier replaces the activation token verifier. Default: JWTVerifier.
func WithTokenVerifier(v TokenVerifier) ManagerOption {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithAppVersion sets the application version reported on activation.
func WithAppVersion(v string) ManagerOption {
	return func(m *Manager) {
		m.appVersion = v
	}
}

// WithClientVersion overrides the SDK version reported on activation.
func WithClientVersion(v string) ManagerOption {
	return func(m *Manager) {
		m.clientVersion = v
	}
}

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the time source used for every license decision.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithServerSyncDelay sets the delay before the first background sync
// scheduled by IsLicenseGenuine. Default: DefaultServerSyncDelay.
func WithServerSyncDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.syncDelay = d
	}
}

// WithMetrics records outcomes on the given collectors.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}
