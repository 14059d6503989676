package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Options selects and configures a Backend.
type Options struct {
	// Backend is one of file_system, bolt or minio.
	Backend string
	// Path is the workspace of the file_system backend and the directory of the bolt backend.
	Path  string
	Minio MinioOptions
}

// Open returns the Backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "file_system":
		return NewFileSystem(opts.Path)
	case "bolt":
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, errors.Wrap(err, "could not create storage directory")
		}
		return NewBolt(filepath.Join(opts.Path, "chunks.db"))
	case "minio":
		return NewMinio(ctx, opts.Minio)
	default:
		return nil, errors.Errorf("unknown storage backend %q", opts.Backend)
	}
}
