package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/elalerce/records/internal/platform/envelope"
)

// RequestTimeout puts a deadline on the request context. Store calls observe
// it; when the deadline is what ended the handler, the response becomes a
// 504 instead of whatever failure the expired context produced.
//
// The handler runs on the calling goroutine, so nothing is written to the
// response after the middleware returns.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return &envelope.Error{
					Status:  http.StatusGatewayTimeout,
					Message: "request processing exceeded the allowed time limit",
					Err:     err,
				}
			}
			return err
		}
	}
}
