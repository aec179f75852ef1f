package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(reasonFallbacks.WithLabelValues("rejected"))
	RecordReasonFallback("rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(reasonFallbacks.WithLabelValues("rejected")))

	before = testutil.ToFloat64(matchRequests.WithLabelValues("ok"))
	RecordMatch("ok", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(matchRequests.WithLabelValues("ok")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	e := echo.New()
	e.Use(Middleware)
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/metrics", echo.WrapHandler(Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `grantmatch_http_requests_total{method="GET",path="/ping",status="200"}`)
}
