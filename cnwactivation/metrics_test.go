package cnwactivation

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration must fail")

	_, err = NewMetrics(nil)
	assert.NoError(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.recordServerRequest("activate", StatusOK)
	m.recordValidation(StatusOK)
	m.recordMeterUpdate("reset", StatusOK)
	m.recordSyncTick(StatusEInet)
}

func TestMetrics_RecordsManagerOutcomes(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	h := newTestManager(t, &fakeTransport{}, WithMetrics(metrics))
	h.serve(t, basePayload(h.clock.Now()))
	_, err = h.m.ActivateLicense(context.Background())
	require.NoError(t, err)

	h.transport.update = func(string, []byte) (*Response, error) {
		return jsonResponse(http.StatusTooManyRequests, "")
	}
	err = h.m.ResetActivationMeterAttributeUses(context.Background(), "api_calls")
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.serverRequests.WithLabelValues("activate", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.serverRequests.WithLabelValues("sync", "E_RATE_LIMIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.meterUpdates.WithLabelValues("reset", "E_RATE_LIMIT")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.validations.WithLabelValues("OK")), 1.0)
}
