package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonydevcode/mousetester/internal/config"
	"github.com/jonydevcode/mousetester/internal/features"
)

func newTestServer() (*Server, *http.ServeMux) {
	cfg := config.DefaultConfig()
	service := NewCaptureService(cfg, nil)
	server := NewServer(cfg, service, 0)

	router := http.NewServeMux()
	server.setupRoutes(router)
	return server, router
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestServer()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

// 設定更新はサーバーだけでなく計測サービスにも伝播し、
// 以降のセッションのデフォルト計測時間に反映される
func TestUpdateConfigPropagatesToService(t *testing.T) {
	server, router := newTestServer()

	body := strings.NewReader(`{"session":{"duration":99000000000}}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/config", body))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 99*time.Second, server.GetConfig().Session.Duration)
	assert.Equal(t, 99*time.Second, server.service.Config().Session.Duration)
}

func TestSessionResultWithoutSession(t *testing.T) {
	_, router := newTestServer()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/result", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWithoutSession(t *testing.T) {
	_, router := newTestServer()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartSessionMissingDevice(t *testing.T) {
	_, router := newTestServer()

	body := strings.NewReader(`{"device_path": "/nonexistent/event0", "duration_ms": 100}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/start", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionStatusIdle(t *testing.T) {
	_, router := newTestServer()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idle"`)
}

func TestResultResponseMapping(t *testing.T) {
	samples := []features.MotionSample{
		{DX: 5, DY: -3, Buttons: 1, Time: 0},
		{DX: 2, DY: 0, Time: 16 * time.Millisecond},
	}
	result := &features.Result{
		Samples: samples,
		Summary: features.Summarize(samples, 16*time.Millisecond),
	}

	response := newResultResponse(result)
	assert.Equal(t, 2, response.SampleCount)
	require.Len(t, response.Samples, 2)
	assert.Equal(t, int32(5), response.Samples[0].DX)
	assert.Equal(t, uint16(1), response.Samples[0].Buttons)
	assert.Equal(t, int64(16*time.Millisecond), response.Samples[1].TimeNs)
	require.NotNil(t, response.Interval)
	assert.InDelta(t, 62.5, response.Interval.RateHz, 0.01)
	assert.Empty(t, response.Error)
}
