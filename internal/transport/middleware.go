package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/notifyhq/delivery-pipeline/internal/observability"
)

// CorrelationIDHeader carries the caller-supplied request correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID attaches a correlation id to every request: the caller's
// header value when present, a fresh one otherwise. The id rides the user
// context so downstream publishes stamp it onto the broker message, and it
// is echoed back on the response.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(CorrelationIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		c.Set(CorrelationIDHeader, id)

		return c.Next()
	}
}
