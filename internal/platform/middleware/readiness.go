package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elalerce/records/internal/platform/envelope"
)

// ErrNotReady is returned for requests that arrive before the backing store
// is reachable.
var ErrNotReady = envelope.NewError(http.StatusServiceUnavailable, "store not ready")

// ReadinessGate answers 503 until ready reports true. It is checked on every
// request, so a store that comes up late starts serving without a restart.
func ReadinessGate(ready func() bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !ready() {
				c.Response().Header().Set("Retry-After", "1")
				return ErrNotReady
			}
			return next(c)
		}
	}
}
