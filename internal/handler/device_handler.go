// internal/handler/device_handler.go
package handler

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haptic-bridge/internal/model"
	"haptic-bridge/internal/service"
	"haptic-bridge/internal/utils"
)

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)

		deviceRoutes := devices.Group("/:device_id")
		{
			deviceRoutes.GET("", h.GetDevice)
			deviceRoutes.POST("/connect", h.ConnectDevice)
			deviceRoutes.POST("/disconnect", h.DisconnectDevice)
			deviceRoutes.POST("/write", h.WriteDevice)
		}
	}
}

// WriteRequest carries a raw payload for a connected device
type WriteRequest struct {
	Data     string `json:"data" binding:"required"`
	Encoding string `json:"encoding"`
}

// ListDevices lists known devices, optionally filtered by status
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.discoveryService.ListDevices()

	if status := c.Query("status"); status != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if d.Status == model.DeviceStatus(status) {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", gin.H{
		"devices": devices,
		"total":   len(devices),
	})
}

// GetDevice retrieves a device by ID
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	device, err := h.discoveryService.GetDevice(id)
	if err != nil {
		h.respondError(c, "Failed to get device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

// ConnectDevice opens a session with a discovered device
func (h *DeviceHandler) ConnectDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	device, err := h.discoveryService.ConnectDevice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to connect device", err)
		return
	}

	h.logger.Info("Device connected successfully", zap.String("device_id", id.String()))
	utils.SuccessResponse(c, http.StatusOK, "Device connected successfully", device)
}

// DisconnectDevice closes the session with a connected device
func (h *DeviceHandler) DisconnectDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	device, err := h.discoveryService.DisconnectDevice(c.Request.Context(), id)
	if err != nil && !errors.Is(err, service.ErrDeviceNotFound) && !errors.Is(err, service.ErrDeviceNotConnected) {
		h.logger.Warn("Device disconnected with error", zap.String("device_id", id.String()), zap.Error(err))
		utils.SuccessResponse(c, http.StatusOK, "Device disconnected with error", device)
		return
	}
	if err != nil {
		h.respondError(c, "Failed to disconnect device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device disconnected successfully", device)
}

// WriteDevice sends a raw payload to a connected device
func (h *DeviceHandler) WriteDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payload, err := decodePayload(req.Data, req.Encoding)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{
			"data": err.Error(),
		})
		return
	}

	if err := h.discoveryService.WriteDevice(c.Request.Context(), id, payload); err != nil {
		h.respondError(c, "Failed to write to device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Payload written", gin.H{
		"device_id": id,
		"bytes":     len(payload),
	})
}

func (h *DeviceHandler) deviceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID", err)
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps discovery service errors to HTTP status codes
func (h *DeviceHandler) respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDeviceConnected),
		errors.Is(err, service.ErrDeviceNotConnected),
		errors.Is(err, service.ErrNotConnectable):
		status = http.StatusConflict
	default:
		h.logger.Error(message, zap.Error(err))
	}
	utils.ErrorResponse(c, status, message, err)
}

// decodePayload turns the request data into bytes; text is the default encoding
func decodePayload(data, encoding string) ([]byte, error) {
	switch encoding {
	case "", "text":
		return []byte(data), nil
	case "hex":
		return hex.DecodeString(data)
	case "base64":
		return base64.StdEncoding.DecodeString(data)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
