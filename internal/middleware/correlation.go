package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderCorrelationID carries the correlation id on requests and responses.
	HeaderCorrelationID = "X-Correlation-ID"
	headerRequestID     = "X-Request-ID"
	// QueryCorrelationID lets browser websocket clients, which cannot set headers, pick their id.
	QueryCorrelationID = "cid"

	localsCorrelationID    = "correlation_id"
	maxCorrelationIDLength = 64
)

type correlationIDKey struct{}

// CorrelationID binds a correlation id to every request. Client supplied ids are accepted from
// the headers or the cid query parameter when they are short and contain only safe characters;
// otherwise a new id is generated.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := firstValidCorrelationID(
			c.Get(HeaderCorrelationID),
			c.Get(headerRequestID),
			c.Query(QueryCorrelationID),
		)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(localsCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext returns the correlation id stored in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation id bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(localsCorrelationID).(string); ok && id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation id to ctx. Blank ids leave ctx unchanged.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// CorrelatedLogger returns base tagged with the correlation id, if any.
func CorrelatedLogger(base zerolog.Logger, correlationID string) zerolog.Logger {
	if correlationID == "" {
		return base
	}
	return base.With().Str("correlation_id", correlationID).Logger()
}

func firstValidCorrelationID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if validCorrelationID(candidate) {
			return candidate
		}
	}
	return ""
}

// validCorrelationID keeps ids safe to echo in headers and log lines.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
