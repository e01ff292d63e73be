package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/auth"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Kind    auth.Kind    `json:"kind,omitempty"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respond(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

// statusOf maps an error kind to its HTTP status.
func statusOf(k auth.Kind) int {
	switch k {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// invalid turns ozzo validation errors into a 400 response error.
func invalid(err error) error {
	return &validationError{err: err}
}

type validationError struct{ err error }

func (v *validationError) Error() string { return v.err.Error() }
func (v *validationError) Unwrap() error { return v.err }

func fieldErrors(err error) []fieldError {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []fieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]fieldError, 0, len(errs))
	for field, e := range errs {
		out = append(out, fieldError{Field: field, Message: e.Error()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// ErrorHandler renders every error returned by a handler or middleware in
// the response envelope. Internal causes are logged and never echoed.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			body   envelope
			vErr   *validationError
			aErr   *auth.Error
			hErr   *echo.HTTPError
		)
		switch {
		case errors.As(err, &vErr):
			status = http.StatusBadRequest
			body = envelope{Message: "validation failed", Kind: auth.KindValidation, Errors: fieldErrors(vErr.err)}
		case errors.As(err, &aErr):
			status = statusOf(aErr.Kind)
			body = envelope{Message: auth.MessageOf(aErr), Kind: aErr.Kind}
			if aErr.Kind == auth.KindInternal {
				logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
			}
		case errors.As(err, &hErr):
			status = hErr.Code
			body = envelope{Message: http.StatusText(hErr.Code)}
			if msg, ok := hErr.Message.(string); ok && msg != "" {
				body.Message = msg
			}
		default:
			status = http.StatusInternalServerError
			body = envelope{Message: "internal error", Kind: auth.KindInternal}
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("write error response failed", "err", err)
		}
	}
}
