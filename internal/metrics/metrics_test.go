package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FlowEvent("send", "started")
	m.FlowEvent("send", "started")
	m.ObserveAPI("send_email", time.Now(), nil)
	m.ObserveAPI("send_email", time.Now(), errors.New("x"))
	m.Update("message")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.flowEvents.WithLabelValues("send", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("send_email", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("send_email", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("message")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FlowEvent("send", "started")
		m.ObserveAPI("x", time.Now(), nil)
		m.Update("message")
	})
}
