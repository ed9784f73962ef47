// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	runner    CommandRunner
	service   string
	version   string
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(runner CommandRunner, service, version string) *HealthHandler {
	return &HealthHandler{
		runner:    runner,
		service:   service,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthCheck reports whether the device session is open. It does not send
// anything to the device.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.runner.Status()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.service,
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	if status.Open {
		health.Checks["device"] = CheckResult{
			Status:  "healthy",
			Message: "Serial session open",
			Data: map[string]interface{}{
				"port":          status.Port,
				"baud_rate":     status.BaudRate,
				"lines_written": status.Stats.LinesWritten,
				"lines_read":    status.Stats.LinesRead,
				"timeouts":      status.Stats.Timeouts,
				"errors":        status.Stats.ErrorCount,
				"last_activity": status.Stats.LastActivity,
			},
		}
	} else {
		health.Status = "unhealthy"
		health.Checks["device"] = CheckResult{
			Status:  "unhealthy",
			Message: "Serial session closed",
			Data:    map[string]interface{}{"port": status.Port},
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// LivenessCheck reports that the process is serving requests
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
