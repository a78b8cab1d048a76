package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/utils"
	appErrors "github.com/samg2014/VirtualHand/pkg/errors"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return strings.ToLower(role)
		}
	}
	return ""
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	raw := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+key)
	}
	return uint(parsed), nil
}

// requestContext carries the fiber user context and correlation id into service calls.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.CorrelatedLogger(base, middleware.GetCorrelationID(c))
	return &logger
}

// respondError translates a service error into the JSON envelope. Internal failures are
// logged and their detail withheld from the client.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	appErr := appErrors.FromError(err)
	if appErr.Status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Msg(action + " failed")
		return utils.SendError(c, appErr.Status, "failed to "+action)
	}
	return utils.Fail(c, appErr.Status, appErr.Message, fiber.Map{"code": appErr.Code})
}
