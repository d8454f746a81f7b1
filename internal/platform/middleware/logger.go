package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Logger emits one structured line per request, including the acting
// clinic user when one is authenticated.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			// Auth middleware runs inside this one, so the actor is only
			// on the context after next returns.
			if actor := auth.ActorFromContext(c.Request().Context()); actor.ID != uuid.Nil {
				evt = evt.
					Str("actor_id", actor.ID.String()).
					Str("actor_role", actor.Role)
			}
			evt.Msg("request")

			return err
		}
	}
}
