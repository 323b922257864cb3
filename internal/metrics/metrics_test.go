package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestCountersAndHandler(t *testing.T) {
	Init()
	before := testutil.ToFloat64(AnalysesTotal.WithLabelValues("ok"))
	AnalysesTotal.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysesTotal.WithLabelValues("ok")))

	ObserveStage("preprocess", time.Now().Add(-10*time.Millisecond))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "fieldscout_analyses_total"))
	assert.True(t, strings.Contains(body, `fieldscout_stage_duration_seconds_count{stage="preprocess"}`))
}
