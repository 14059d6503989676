package service

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error is a typed failure of the chunked store.
// Callers match it with errors.Cause or errors.Is.
type Error struct {
	StatusCode int
	Text       string
}

var (
	// ErrInvalidIdentifier is returned for a malformed file identifier.
	ErrInvalidIdentifier = &Error{http.StatusBadRequest, "Invalid file identifier"}
	// ErrNotFound is returned when no manifest exists for a well-formed identifier.
	ErrNotFound = &Error{http.StatusNotFound, "File Not Found"}
	// ErrObjectTooLarge is returned when an object exceeds the in-memory read limit.
	ErrObjectTooLarge = &Error{http.StatusRequestEntityTooLarge, "File too large to be loaded in memory"}
	// ErrUploadFailed is returned when a chunk or the manifest could not be written.
	ErrUploadFailed = &Error{http.StatusInternalServerError, "Upload failed"}
	// ErrCorruptObject is returned when a chunk referenced by a manifest is missing or damaged.
	ErrCorruptObject = &Error{http.StatusInternalServerError, "File corrupted"}
	// ErrStorage is returned when the backing medium is unavailable.
	ErrStorage = &Error{http.StatusInternalServerError, "Storage unavailable"}
	// ErrExtractionFailed is returned when the text extractor rejects a file.
	ErrExtractionFailed = &Error{http.StatusInternalServerError, "Text extraction failed"}
)

// Error implements error interface.
func (e *Error) Error() string {
	return e.Text
}

// HTTPCode returns the HTTP status code.
func (e *Error) HTTPCode() int {
	return e.StatusCode
}

// Kind returns the sentinel Error carried by err, or nil.
func Kind(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// fail wraps cause as the given kind, keeping the cause message for logs.
func fail(kind *Error, cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return errors.Wrap(kind, msg)
}
