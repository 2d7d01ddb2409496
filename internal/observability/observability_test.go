package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/unityvault/ticketflow/internal/config"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "verbose"}, config.AppConfig{Name: "ticketflow"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "DEBUG"}, config.AppConfig{Name: "ticketflow"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestMetricsRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordOperation("ticket.create", OutcomeOK, 5*time.Millisecond)
	m.RecordOperation("ticket.create", OutcomeOK, 7*time.Millisecond)
	m.RecordOperation("ticket.create", "CONFLICT", time.Millisecond)
	m.RecordRateLimit("command", true)
	m.RecordRateLimit("command", false)
	m.RecordNotification("log", nil)
	m.RecordNotification("redis", errors.New("down"))
	m.RecordRequest("/healthz", "GET", 200, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("ticket.create", OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("ticket.create", "CONFLICT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rateLimit.WithLabelValues("command", "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("redis", OutcomeError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/healthz", "GET", "200")))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("ticket.close", OutcomeOK, time.Millisecond)
		m.RecordRateLimit("button", true)
		m.RecordNotification("log", nil)
		m.RecordRequest("/", "GET", 200, 0)
	})
}

func TestTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, config.AppConfig{Name: "ticketflow"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "ticket.create")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
}
