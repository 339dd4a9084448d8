package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/log"
	"Go_Drop/internal/realtime"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Connect upgrades to a WebSocket joined to the caller's room.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	deviceID := c.Query("deviceId")
	if len(deviceID) > 64 {
		deviceID = deviceID[:64]
	}
	if err := h.hub.Serve(c.Writer, c.Request, currentUserID(c), deviceID); err != nil {
		log.Debugf("websocket session ended: %v", err)
	}
}

// Online lists the caller's connected devices.
func (h *RealtimeHandler) Online(c *gin.Context) {
	devices, err := h.hub.Online(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
