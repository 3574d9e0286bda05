// internal/handler/panel_handler_test.go
package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
)

type stubController struct {
	mu       sync.Mutex
	starts   int
	resets   int
	snapshot model.Snapshot
}

func (s *stubController) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *stubController) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *stubController) CurrentSnapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func panelTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "boardtester", Version: "1.0.0"},
	}
}

func setupPanelRouter(controller *stubController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewPanelHandler(controller, panelTestConfig(), zap.NewNop())

	router := gin.New()
	router.POST("/api/v1/test/start", h.StartTest)
	router.POST("/api/v1/test/reset", h.ResetTest)
	router.GET("/api/v1/test/status", h.GetStatus)
	router.GET("/health", h.HealthCheck)
	return router
}

func TestStartTest(t *testing.T) {
	controller := &stubController{}
	router := setupPanelRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/start", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, controller.starts)

	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "Start requested", response.Message)
}

func TestResetTest(t *testing.T) {
	controller := &stubController{}
	router := setupPanelRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/reset", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, controller.resets)
}

func TestGetStatus(t *testing.T) {
	controller := &stubController{
		snapshot: model.Snapshot{
			RunID:        "run-42",
			State:        model.StateScanning,
			Status:       "Scan the TOP data matrix code",
			Codes:        []string{},
			Cases:        model.DefaultTestCases(),
			ResetEnabled: true,
		},
	}
	router := setupPanelRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test/status", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Success bool           `json:"success"`
		Data    model.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "run-42", response.Data.RunID)
	assert.Equal(t, model.StateScanning, response.Data.State)
	assert.True(t, response.Data.ResetEnabled)
	assert.Len(t, response.Data.Cases, 4)
}

func TestHealthCheck(t *testing.T) {
	controller := &stubController{}
	router := setupPanelRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "boardtester", response.Data["name"])
}
