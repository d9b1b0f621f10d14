package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. Evaluation runs
// its queries on the request context, so they are cancelled when it expires.
// If the deadline has passed by the time the handler returns and nothing has
// been written, the client gets a 504 with a JSON error body, whatever error
// the cancelled handler reported.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, map[string]string{
					"error": "report evaluation exceeded the allowed time limit",
				})
			}
			return err
		}
	}
}
