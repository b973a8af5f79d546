// Package httperr maps service and database errors onto echo HTTP errors.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rhp/rhp/internal/platform/db"
)

// ValidationError is returned by services for bad input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// From converts err into an *echo.HTTPError. Errors that already are HTTP
// errors (such as the staging fallback's 503) pass through unchanged.
// notFound is the message used for 404s.
func From(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}

	code := db.StatusCode(err)
	msg := http.StatusText(code)
	switch code {
	case http.StatusNotFound:
		msg = notFound
	case http.StatusConflict:
		msg = "conflicts with an existing record"
	case http.StatusUnprocessableEntity:
		msg = "value rejected by the database"
	case http.StatusServiceUnavailable:
		msg = "database unavailable"
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
