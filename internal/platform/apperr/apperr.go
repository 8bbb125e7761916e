// Package apperr defines the error taxonomy shared by the domain services and
// renders it as the JSON failure envelope at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNoRecord is returned by repositories when a lookup matches nothing.
	ErrNoRecord = errors.New("no matching record")
	// ErrDuplicate is returned by repositories when a write would break a
	// uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Unexpected wraps a store or platform fault. The message shown to callers is
// generic; the wrapped error is only logged.
func Unexpected(op string, err error) *Error {
	return &Error{Kind: KindUnexpected, Message: op, Err: err}
}

// Wrap leaves classified errors untouched and turns anything else into an
// Unexpected error for op. It returns nil for a nil err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Unexpected(op, err)
}

// KindOf reports the kind of err. Unclassified errors are KindUnexpected.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// IsNoRecord reports whether err signals a missing record.
func IsNoRecord(err error) bool {
	return errors.Is(err, ErrNoRecord)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// Envelope is the JSON body returned for every failed request.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders any error returned by a handler or middleware as
// the failure envelope. Unexpected errors are logged and their details hidden.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolve(err)
		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, Envelope{Success: false, Message: msg})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// StatusOf returns the HTTP status HTTPErrorHandler answers err with.
func StatusOf(err error) int {
	status, _ := resolve(err)
	return status
}

func resolve(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindUnexpected {
			return http.StatusInternalServerError, "Internal Server Error"
		}
		return ae.Kind.Status(), ae.Message
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
		return he.Code, msg
	}

	return http.StatusInternalServerError, "Internal Server Error"
}
