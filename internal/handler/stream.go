package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/service"
	ws "github.com/vocaldocs/api/internal/websocket"
)

// StreamHandler upgrades owners of a job to a live status stream.
type StreamHandler struct {
	track *service.TrackService
	hub   *ws.Hub
}

func NewStreamHandler(track *service.TrackService, hub *ws.Hub) *StreamHandler {
	return &StreamHandler{track: track, hub: hub}
}

// Upgrade handles GET /ws/jobs/:referenceKey before the protocol switch.
// Only the job's owner may subscribe.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	job, err := h.track.Get(c.UserContext(), middleware.GetOwner(c), c.Params("referenceKey"))
	if err != nil {
		return serviceError(c, err)
	}

	c.Locals("job", job)
	return c.Next()
}

// Stream runs for the lifetime of the WebSocket connection.
func (h *StreamHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ref := conn.Params("referenceKey")
		job, _ := conn.Locals("job").(*model.Job)
		h.hub.HandleConnection(conn, ref, job)
	})
}
