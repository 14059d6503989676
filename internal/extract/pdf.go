// Package extract converts documents to plain text.
package extract

import (
	"bytes"
	"context"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// A PDF extracts the text of PDF documents.
type PDF struct{}

// NewPDF returns a new PDF extractor.
func NewPDF() *PDF {
	return &PDF{}
}

// Extract returns the plain text of all the pages of the given document.
func (*PDF) Extract(ctx context.Context, data []byte) (text string, err error) {
	if err = ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = errors.Errorf("malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "could not open document")
	}

	pr, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "could not extract text")
	}

	payload, err := io.ReadAll(pr)
	if err != nil {
		return "", errors.Wrap(err, "could not extract text")
	}
	return string(payload), nil
}
