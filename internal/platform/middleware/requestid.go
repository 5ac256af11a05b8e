package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type ridKey struct{}

// RequestID assigns every request a correlation id, honoring an incoming
// X-Request-ID header so ids survive proxies. The id is echoed back in the
// response, stored on the echo context for the logger, and placed on the
// request context so services below the handler layer can stamp it onto
// audit events.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set("X-Request-ID", rid)

			ctx := context.WithValue(c.Request().Context(), ridKey{}, rid)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequestIDFromContext returns the request correlation id set by RequestID,
// or an empty string.
func RequestIDFromContext(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}

// RequestIDFrom reads the correlation id off a plain context.
func RequestIDFrom(ctx context.Context) string {
	rid, _ := ctx.Value(ridKey{}).(string)
	return rid
}
