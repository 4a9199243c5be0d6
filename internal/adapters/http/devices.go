package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type deviceHandlers struct {
	registry *app.DeviceRegistry
	signer   auth.Signer
	now      core.Clock
}

type registerRequest struct {
	DeviceName string `json:"deviceName" binding:"required"`
	IsParent   bool   `json:"isParent"`
}

type registerResponse struct {
	Token    string          `json:"token"`
	DeviceID domain.DeviceID `json:"deviceId"`
}

type statusRequest struct {
	Status domain.DeviceStatus `json:"status" binding:"required"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Success         bool            `json:"success"`
	DeviceID        domain.DeviceID `json:"deviceId"`
	ReceivedMessage string          `json:"receivedMessage"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (h *deviceHandlers) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

func (h *deviceHandlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "deviceName is required."})
		return
	}
	d, err := h.registry.Register(req.DeviceName, req.IsParent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	token, err := h.signer.Issue(string(d.ID), d.Name, h.clock())
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue token"})
		return
	}
	c.JSON(http.StatusCreated, registerResponse{Token: token, DeviceID: d.ID})
}

func (h *deviceHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

func (h *deviceHandlers) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "status is required."})
		return
	}
	d, err := h.registry.UpdateStatus(domain.DeviceID(c.Param("id")), req.Status)
	switch {
	case errors.Is(err, app.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Device not found."})
	case errors.Is(err, app.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"message": "status must be Online or Offline."})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
	default:
		c.JSON(http.StatusOK, d)
	}
}

func (h *deviceHandlers) message(c *gin.Context) {
	id := domain.DeviceID(c.Param("id"))
	var req messageRequest
	_ = c.ShouldBindJSON(&req)

	if _, err := h.registry.Get(id); err != nil {
		log.Warn().Str("module", "adapters.http").Str("device", string(id)).Msg("device not found")
		c.JSON(http.StatusNotFound, gin.H{"message": "Device not found."})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Message is required."})
		return
	}

	d, err := h.registry.Seen(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Device not found."})
		return
	}
	sender := ""
	if claims, ok := c.Get(claimsKey); ok {
		sender = claims.(auth.Claims).ID
	}
	log.Info().Str("module", "adapters.http").Str("device", string(id)).Str("sender", sender).
		Str("message", req.Message).Msg("message received")
	c.JSON(http.StatusOK, messageResponse{
		Success:         true,
		DeviceID:        id,
		ReceivedMessage: req.Message,
		Timestamp:       d.LastSeen,
	})
}
