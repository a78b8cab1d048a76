package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/service"
)

// RealtimeHandler upgrades authenticated requests to the realtime websocket.
type RealtimeHandler struct {
	gateway service.RealtimeGateway
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(gateway service.RealtimeGateway, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		gateway: gateway,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if userIDFromContext(c) == 0 {
			return fiber.ErrUnauthorized
		}

		c.Locals("request_ctx", requestContext(c))
		c.Locals("user_role", userRoleFromContext(c))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	role, _ := conn.Locals("user_role").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = middleware.ContextWithCorrelation(context.Background(), correlation)
	}

	session := service.RealtimeSession{
		UserID:        userID,
		Role:          role,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Str("role", role).Msg("realtime websocket connected")
	h.gateway.ServeConnection(conn, session)
	h.logger.Info().Uint("user_id", userID).Msg("realtime websocket disconnected")
}
