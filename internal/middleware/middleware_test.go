package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	calls []int
}

func (r *countingRecorder) RecordHTTPRequest(_ string, statusCode int) {
	r.calls = append(r.calls, statusCode)
}

func newEngine(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware...)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/panic", func(c *gin.Context) { panic(errors.New("boom")) })
	r.GET("/panic-string", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogging_AssignsRequestID(t *testing.T) {
	recorder := &countingRecorder{}
	r := newEngine(Logging(recorder))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, recorder.calls)
}

func TestLogging_ReusesIncomingRequestID(t *testing.T) {
	r := newEngine(Logging(nil))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	assert.Equal(t, "abc-123", serve(r, req).Header().Get(RequestIDHeader))
}

func TestHandlePanics(t *testing.T) {
	r := newEngine(gin.CustomRecovery(HandlePanics()))

	for _, path := range []string{"/panic", "/panic-string"} {
		rec := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "boom", path)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()
	r := newEngine(rl.Middleware())

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, request("192.0.2.1").Code)
	assert.Equal(t, http.StatusOK, request("192.0.2.1").Code)

	limited := request("192.0.2.1")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "30", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("192.0.2.2").Code)
	assert.Equal(t, 2, rl.clientCount())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10)
	defer rl.Stop()

	rl.limiterFor("192.0.2.1")
	rl.cleanup(time.Now())
	assert.Equal(t, 1, rl.clientCount())

	rl.cleanup(time.Now().Add(3 * rl.cleanupInterval))
	assert.Equal(t, 0, rl.clientCount())
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
