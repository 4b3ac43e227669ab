package cnwactivation

import (
	"context"
	"strings"
)

// GetActivationMeterAttributeUses returns how many uses of the named meter
// attribute this activation has recorded. The attribute must exist on the
// license; an attribute never used by this activation reports 0.
func (m *Manager) GetActivationMeterAttributeUses(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activationMeterAttributeUses(ctx, name)
}

// IncrementActivationMeterAttributeUses adds increment uses and syncs the
// new count to the server, which enforces the allowed-uses limit.
func (m *Manager) IncrementActivationMeterAttributeUses(ctx context.Context, name string, increment uint32) error {
	return m.updateMeter(ctx, "increment", name, func(current int64) int64 {
		return current + int64(increment)
	})
}

// DecrementActivationMeterAttributeUses subtracts decrement uses, flooring
// at zero, and syncs the new count to the server.
func (m *Manager) DecrementActivationMeterAttributeUses(ctx context.Context, name string, decrement uint32) error {
	return m.updateMeter(ctx, "decrement", name, func(current int64) int64 {
		if int64(decrement) >= current {
			return 0
		}
		return current - int64(decrement)
	})
}

// ResetActivationMeterAttributeUses sets the uses to zero and syncs it to
// the server.
func (m *Manager) ResetActivationMeterAttributeUses(ctx context.Context, name string) error {
	return m.updateMeter(ctx, "reset", name, func(int64) int64 { return 0 })
}

// updateMeter reads the current uses, computes the new value and round-trips
// it to the server. The in-memory payload changes only when the server
// answers with a verified token; nothing is queued on failure.
func (m *Manager) updateMeter(ctx context.Context, operation, name string, next func(int64) int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.activationMeterAttributeUses(ctx, name)
	if err != nil {
		s, _ := StatusOf(err)
		m.metrics.recordMeterUpdate(operation, s)
		return err
	}
	key, err := m.loadLicenseKey(ctx)
	if err != nil {
		return err
	}

	attrs := withMeterUses(m.payload.ActivationMeterAttributes, name, next(current))
	scratch := *m.payload
	status := m.service.activateFromServer(ctx, m.productID, key, m.publicKey, &scratch, attrs, true)
	m.metrics.recordMeterUpdate(operation, status)
	if !status.IsSuccess() {
		m.logger.Warn().Str("product_id", m.productID).Str("meter", name).Stringer("status", status).Msg("Meter attribute update failed")
		return statusError(status)
	}
	*m.payload = scratch
	return nil
}

// activationMeterAttributeUses must be called with m.mu held.
func (m *Manager) activationMeterAttributeUses(ctx context.Context, name string) (int64, error) {
	status := m.isLicenseValid(ctx)
	if !status.IsSuccess() {
		return 0, errorFor(status)
	}
	if _, ok := findLicenseMeterAttribute(name, m.payload.LicenseMeterAttributes); !ok {
		return 0, statusError(StatusEMeterAttributeNotFound)
	}
	for _, a := range m.payload.ActivationMeterAttributes {
		if strings.EqualFold(a.Name, name) {
			return a.Uses, nil
		}
	}
	return 0, nil
}

// withMeterUses returns a copy of attrs with name set to uses, appending the
// attribute when it is not present yet.
func withMeterUses(attrs []ActivationMeterAttribute, name string, uses int64) []ActivationMeterAttribute {
	out := make([]ActivationMeterAttribute, 0, len(attrs)+1)
	found := false
	for _, a := range attrs {
		if !found && strings.EqualFold(a.Name, name) {
			a.Uses = uses
			found = true
		}
		out = append(out, a)
	}
	if !found {
		out = append(out, ActivationMeterAttribute{Name: name, Uses: uses})
	}
	return out
}
