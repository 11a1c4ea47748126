package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestInit_Idempotent(t *testing.T) {
	assert.Same(t, Init(), Get())
}

func TestMetricsMiddleware_RecordsRoute(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(Get().HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "204"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	after := testutil.ToFloat64(Get().HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "204"))
	assert.Equal(t, before+1, after)
}

func TestBusinessCounters(t *testing.T) {
	before := testutil.ToFloat64(Get().LoginsTotal.WithLabelValues("failure"))
	RecordLogin(false)
	assert.Equal(t, before+1, testutil.ToFloat64(Get().LoginsTotal.WithLabelValues("failure")))

	issued := testutil.ToFloat64(Get().TokensIssued)
	RecordTokenIssued(2.5)
	assert.Equal(t, issued+1, testutil.ToFloat64(Get().TokensIssued))

	SetLedgerQueueDepth(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(Get().LedgerQueueDepth))
}

func TestGinHandler_ExposesMetrics(t *testing.T) {
	RecordBadgeAwarded()

	r := gin.New()
	r.GET("/metrics", GinHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "badges_awarded_total"))
}
