package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")

	c.ObserveTransition("apply", "ok")
	c.ObserveTransition("apply", "ok")
	c.ObserveTransition("apply", "conflict")
	c.ObserveRecurrence("spawned")
	c.ObserveCommand("/tasks", "throttled")
	c.ObserveDigest("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("apply", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("apply", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recurrences.WithLabelValues("spawned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("/tasks", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.digests.WithLabelValues("sent")))
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")
	a.ObserveRecurrence("failed")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recurrences.WithLabelValues("failed")))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector("test")
	c.ObserveTransition("unlink", "forbidden")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_transitions_total{op="unlink",outcome="forbidden"} 1`), body)
}
