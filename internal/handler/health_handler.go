// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"haptic-bridge/internal/config"
	"haptic-bridge/internal/service"
	"haptic-bridge/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	discoveryService *service.DiscoveryService
	config           *config.Config
	logger           *utils.ServiceLogger
	startedAt        time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(discoveryService *service.DiscoveryService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		discoveryService: discoveryService,
		config:           config,
		logger:           utils.NewServiceLogger(logger, "health-handler"),
		startedAt:        time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports the registered communication managers and device counts
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	managers := h.discoveryService.ListManagers()
	if len(managers) == 0 {
		health.Status = "unhealthy"
		health.Checks["managers"] = CheckResult{
			Status:  "unhealthy",
			Message: "No communication managers registered",
		}
	} else {
		names := make([]string, 0, len(managers))
		for _, m := range managers {
			names = append(names, m.Name)
		}
		health.Checks["managers"] = CheckResult{
			Status: "healthy",
			Data: map[string]interface{}{
				"count": len(managers),
				"names": names,
			},
		}
	}

	devices := h.discoveryService.ListDevices()
	connected := 0
	for _, d := range devices {
		if d.IsConnected() {
			connected++
		}
	}
	health.Checks["devices"] = CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"known":     len(devices),
			"connected": connected,
			"scanning":  h.discoveryService.IsScanning(),
		},
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.Int("managers", len(managers)))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck is ready once at least one manager is registered
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if len(h.discoveryService.ListManagers()) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "no communication managers registered",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck answers as long as the process can respond
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
