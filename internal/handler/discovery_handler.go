// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"haptic-bridge/internal/service"
	"haptic-bridge/internal/utils"
)

// DiscoveryHandler handles scanning and manager requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers scanning and manager routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	scanning := router.Group("/scanning")
	{
		scanning.GET("", h.GetScanningStatus)
		scanning.POST("/start", h.StartScanning)
		scanning.POST("/stop", h.StopScanning)
	}

	router.GET("/managers", h.ListManagers)
}

// StartScanning starts every scanning communication manager
func (h *DiscoveryHandler) StartScanning(c *gin.Context) {
	if err := h.discoveryService.StartScanning(c.Request.Context()); err != nil {
		h.logger.Error("Failed to start scanning", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to start scanning", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scanning started", gin.H{
		"scanning": h.discoveryService.IsScanning(),
	})
}

// StopScanning stops every scanning communication manager
func (h *DiscoveryHandler) StopScanning(c *gin.Context) {
	if err := h.discoveryService.StopScanning(c.Request.Context()); err != nil {
		h.logger.Error("Failed to stop scanning", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to stop scanning", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scanning stopped", gin.H{
		"scanning": h.discoveryService.IsScanning(),
	})
}

// GetScanningStatus reports whether any manager is scanning
func (h *DiscoveryHandler) GetScanningStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanning status retrieved", gin.H{
		"scanning": h.discoveryService.IsScanning(),
		"managers": h.discoveryService.ListManagers(),
	})
}

// ListManagers returns the registered communication managers
func (h *DiscoveryHandler) ListManagers(c *gin.Context) {
	managers := h.discoveryService.ListManagers()
	utils.SuccessResponse(c, http.StatusOK, "Managers retrieved", gin.H{
		"managers": managers,
		"total":    len(managers),
	})
}
