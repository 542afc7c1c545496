package handler

import (
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/pkg/serverutils"
	internalWS "notesync-be/internal/websocket"
	"notesync-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type RealtimeHandler struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewRealtimeHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *RealtimeHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", h.ServeWs)
	// called by the relay for every event published by any instance
	r.Post("/broadcast-event", h.BroadcastEvent)
}

// ServeWs authenticates the handshake and attaches the socket to its tenant.
func (h *RealtimeHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	tenant, err := serverutils.ParseTenantToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("RealtimeHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	deviceID := c.Get("X-Device-Id")
	if deviceID == "" {
		deviceID = c.Query("deviceId")
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			fields := map[string]interface{}{"tenant": tenant, "device_id": deviceID}
			h.logger.Info("RealtimeHandler", "Starting WebSocket session", fields)
			internalWS.ServeWs(h.hub, conn, tenant, deviceID)
			h.logger.Info("RealtimeHandler", "WebSocket session ended", fields)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// BroadcastEvent delivers a relayed event to this instance's sockets.
func (h *RealtimeHandler) BroadcastEvent(c *fiber.Ctx) error {
	category := c.Query("category", events.CategoryNote)
	event, err := events.Decode(category, c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.hub.BroadcastLocal(event)
	return c.JSON(serverutils.SuccessResponse("Event delivered", fiber.Map{
		"event":   event.Name,
		"clients": h.hub.Count(event.Tenant),
	}))
}
