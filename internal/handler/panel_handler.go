// internal/handler/panel_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
	"boardtester/internal/utils"
)

// TestController is the slice of the workflow the HTTP surface needs
type TestController interface {
	Start()
	Reset()
	CurrentSnapshot() model.Snapshot
}

// PanelHandler serves the operator control endpoints
type PanelHandler struct {
	workflow TestController
	cfg      *config.Config
	logger   *zap.Logger
}

// NewPanelHandler creates a new panel handler
func NewPanelHandler(workflow TestController, cfg *config.Config, logger *zap.Logger) *PanelHandler {
	return &PanelHandler{
		workflow: workflow,
		cfg:      cfg,
		logger:   logger.With(zap.String("handler", "panel")),
	}
}

// StartTest begins a test run. A start outside IDLE is accepted and
// ignored by the workflow; the panel reflects that through the pushed
// snapshot rather than an HTTP error.
func (h *PanelHandler) StartTest(c *gin.Context) {
	h.workflow.Start()
	utils.SuccessResponse(c, http.StatusAccepted, "Start requested", nil)
}

// ResetTest returns the station to idle, canceling in-flight work
func (h *PanelHandler) ResetTest(c *gin.Context) {
	h.workflow.Reset()
	utils.SuccessResponse(c, http.StatusAccepted, "Reset requested", nil)
}

// GetStatus returns the current workflow snapshot
func (h *PanelHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Current status", h.workflow.CurrentSnapshot())
}

// HealthCheck reports process liveness
func (h *PanelHandler) HealthCheck(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "OK", gin.H{
		"name":    h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
