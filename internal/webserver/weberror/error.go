// Package weberror defines the JSON payload of failed requests.
package weberror

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type (
	// HTTPCoder interface is implemented by application errors.
	HTTPCoder interface {
		// HTTPCode return the HTTP status code for the given error.
		HTTPCode() int
	}

	// Error is the payload rendered in case of error.
	Error struct {
		Code    int    `json:"-"`
		Message string `json:"message"`
	}
)

// StatusCode returns the HTTP status carried by err or its causes. If unknown, it returns 500.
func StatusCode(err error) int {
	var hc HTTPCoder
	if errors.As(err, &hc) {
		return hc.HTTPCode()
	}
	return http.StatusInternalServerError
}

// New returns a new Error.
func New(code int, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// From converts any error into its public form.
// Only the message of the innermost HTTPCoder is exposed, wrapping context stays in the logs.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var hc HTTPCoder
	if !errors.As(err, &hc) {
		return &Error{
			Code:    http.StatusInternalServerError,
			Message: http.StatusText(http.StatusInternalServerError),
		}
	}

	message := http.StatusText(hc.HTTPCode())
	if e, ok := hc.(error); ok {
		message = e.Error()
	}
	return &Error{
		Code:    hc.HTTPCode(),
		Message: message,
	}
}

// Error stringifies the error.
func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// HTTPCode returns the HTTP status code.
func (e *Error) HTTPCode() int {
	return e.Code
}
