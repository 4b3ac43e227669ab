package cnwactivation

import (
	"sync"
	"time"
)

// syncTimer is one running background sync loop. Stop is idempotent and
// never waits for an in-flight tick.
type syncTimer struct {
	stop chan struct{}
	once sync.Once
}

func newSyncTimer() *syncTimer {
	return &syncTimer{stop: make(chan struct{})}
}

func (t *syncTimer) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *syncTimer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// startTimer starts the background sync unless a callback is missing, a
// timer is already running or the Manager is closed. Must be called with
// m.mu held.
func (m *Manager) startTimer(delay, interval time.Duration) {
	if m.callback == nil || m.timer != nil || interval <= 0 || m.ctx.Err() != nil {
		return
	}
	t := newSyncTimer()
	m.timer = t
	m.logger.Debug().Str("product_id", m.productID).Dur("delay", delay).Dur("interval", interval).Msg("Starting server sync")
	go m.runTimer(t, delay, interval)
}

// stopTimer must be called with m.mu held.
func (m *Manager) stopTimer() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}

func (m *Manager) runTimer(t *syncTimer, delay, interval time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-m.ctx.Done():
			return
		case <-timer.C:
		}

		status, callback, keepRunning := m.tick(t)
		if callback != nil {
			callback(status)
		}
		if !keepRunning {
			return
		}
		timer.Reset(interval)
	}
}

// tick runs one server sync while holding m.mu, so it never acts on a
// payload that a foreground call invalidated. The callback is returned
// rather than invoked so it runs without the lock.
func (m *Manager) tick(t *syncTimer) (Status, func(Status), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.stopped() || m.timer != t || m.ctx.Err() != nil {
		return 0, nil, false
	}
	if !m.payload.Valid() {
		m.logger.Debug().Str("product_id", m.productID).Msg("License dropped, stopping server sync")
		m.stopTimer()
		return 0, nil, false
	}

	var status Status
	key, err := m.loadLicenseKey(m.ctx)
	if err != nil {
		status, _ = StatusOf(err)
		if status == StatusOK {
			status = StatusELicenseKey
		}
	} else {
		status = m.service.activateFromServer(m.ctx, m.productID, key, m.publicKey, m.payload, nil, true)
	}
	m.metrics.recordSyncTick(status)

	// Closed during the round trip: the result is stale.
	if m.ctx.Err() != nil {
		return status, nil, false
	}
	if !ValidateServerSyncAllowedStatusCodes(status) {
		m.logger.Warn().Str("product_id", m.productID).Stringer("status", status).Msg("Server sync stopped")
		m.stopTimer()
		return status, m.callback, false
	}
	return status, m.callback, true
}
