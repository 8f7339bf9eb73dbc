package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const timeoutMessage = "request processing exceeded the allowed time limit"

// RequestTimeout puts a deadline on the request context. Store queries honour
// it; when the deadline passes before anything was written the client gets
// 504. The handler runs on the calling goroutine, so a handler that ignores
// its context still finishes before the response is decided. Paths under
// skipPrefixes (the websocket endpoint) are left alone. A non-positive
// timeout disables it.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed {
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return c.JSON(http.StatusGatewayTimeout, ErrorBody(timeoutMessage))
			}
			return err
		}
	}
}
