package cnwactivation

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records activation outcomes. A nil *Metrics records nothing, so
// the Manager and its collaborators call it unconditionally.
type Metrics struct {
	// Server round trips by operation (activate, sync, deactivate, release) and resulting status
	serverRequests *prometheus.CounterVec

	// Offline decisions by status
	validations *prometheus.CounterVec

	// Meter mutations by operation (increment, decrement, reset) and resulting status
	meterUpdates *prometheus.CounterVec

	// Background sync ticks by status
	syncTicks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		serverRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cnw",
				Subsystem: "activation",
				Name:      "server_requests_total",
				Help:      "Total licensing server round trips by operation and resulting status",
			},
			[]string{"operation", "status"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cnw",
				Subsystem: "activation",
				Name:      "validations_total",
				Help:      "Total offline license decisions by status",
			},
			[]string{"status"},
		),
		meterUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cnw",
				Subsystem: "activation",
				Name:      "meter_updates_total",
				Help:      "Total activation meter attribute updates by operation and resulting status",
			},
			[]string{"operation", "status"},
		),
		syncTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cnw",
				Subsystem: "activation",
				Name:      "sync_ticks_total",
				Help:      "Total background server sync ticks by resulting status",
			},
			[]string{"status"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.serverRequests, m.validations, m.meterUpdates, m.syncTicks} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register activation metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) recordServerRequest(operation string, s Status) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(operation, s.String()).Inc()
}

func (m *Metrics) recordValidation(s Status) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) recordMeterUpdate(operation string, s Status) {
	if m == nil {
		return
	}
	m.meterUpdates.WithLabelValues(operation, s.String()).Inc()
}

func (m *Metrics) recordSyncTick(s Status) {
	if m == nil {
		return
	}
	m.syncTicks.WithLabelValues(s.String()).Inc()
}
