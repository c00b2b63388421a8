// Package envelope renders every API response as {ok, data, error}.
package envelope

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Response is the body of every API response.
type Response struct {
	OK     bool              `json:"ok"`
	Data   interface{}       `json:"data,omitempty"`
	Error  string            `json:"error,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Error is an error that knows its HTTP status and client-facing message.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error without an underlying cause.
func NewError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// JSON writes a successful envelope.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Response{OK: true, Data: data})
}

// ErrorHandler converts any error returned by a handler or middleware into a
// failure envelope. Server-side failures are logged and their detail is not
// echoed to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := Classify(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// Classify maps err to a status code and failure envelope.
func Classify(err error) (int, Response) {
	var ee *Error
	if errors.As(err, &ee) {
		// Message is written by this service; the wrapped cause never is.
		msg := ee.Message
		if msg == "" {
			msg = http.StatusText(ee.Status)
		}
		return ee.Status, Response{OK: false, Error: msg, Fields: ee.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code >= http.StatusInternalServerError {
			msg = http.StatusText(he.Code)
		}
		return he.Code, Response{OK: false, Error: msg}
	}

	return http.StatusInternalServerError, Response{OK: false, Error: "internal server error"}
}
