package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a chunk does not exist in the backend.
var ErrNotFound = errors.New("chunk not found")

// Backend is the interface that wraps the chunk operations.
// Chunks are addressed by the file identifier and their sequence number.
// All the implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the name of the backend implementation.
	Name() string

	// PutChunk durably stores the chunk seq of the given file.
	PutChunk(ctx context.Context, fileID string, seq int, data []byte) error
	// GetChunk returns the chunk seq of the given file or ErrNotFound.
	GetChunk(ctx context.Context, fileID string, seq int) ([]byte, error)

	// FileIDs lists all the file identifiers owning at least one chunk.
	FileIDs(ctx context.Context) ([]string, error)
	// RemoveFile deletes all the chunks of the given file.
	RemoveFile(ctx context.Context, fileID string) error

	// Close releases the backend resources.
	Close() error
}

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// ChunkName returns the name of the chunk seq, sortable in lexical order.
func ChunkName(seq int) string {
	return fmt.Sprintf("%08d", seq)
}

func checkFileID(fileID string) error {
	if fileID == "" || fileID == "." || fileID == ".." || strings.ContainsAny(fileID, `/\`) {
		return errors.Errorf("invalid file ID %q", fileID)
	}
	return nil
}
