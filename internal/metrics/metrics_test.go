package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTransition("email", "website")
	m.RecordStore("log_message", errors.New("boom"))
	m.RecordInsight("raw")
	m.RecordProbe(nil)
	m.SessionOpened()
	m.SessionClosed()
	assert.Nil(t, m.Registry())
}

func TestRecordStoreLabelsStatus(t *testing.T) {
	m := New()
	m.RecordStore("log_message", nil)
	m.RecordStore("log_message", errors.New("boom"))
	m.RecordStore("log_message", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("log_message", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("log_message", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordTransition("email", "website")
	m.SessionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `onboarding_transitions_total{from="email",to="website"} 1`))
	assert.True(t, strings.Contains(body, "onboarding_sessions_active 1"))
}
