package service

import (
	"context"

	"github.com/mdouchement/chunkstore/internal/model"
)

// A TextExtractor turns a whole document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Text loads the given file in memory, within limit bytes, and extracts its text.
func (s *ObjectReader) Text(ctx context.Context, id string, limit int64, extractor TextExtractor) (*model.Manifest, string, error) {
	manifest, data, err := s.ReadAll(ctx, id, limit)
	if err != nil {
		return nil, "", err
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return nil, "", fail(ErrExtractionFailed, err, "%s", id)
	}
	return manifest, text, nil
}
