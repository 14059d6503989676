package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type fs struct {
	workspace string
}

// NewFileSystem returns a new File System backend.
// Chunks are stored as `workspace/fileID/seq'.
func NewFileSystem(workspace string) (Backend, error) {
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, errors.Wrap(err, "could not create workspace")
	}

	return &fs{
		workspace: workspace,
	}, nil
}

func (b *fs) Name() string {
	return "file_system"
}

func (b *fs) PutChunk(ctx context.Context, fileID string, seq int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFileID(fileID); err != nil {
		return err
	}

	dir := filepath.Join(b.workspace, fileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "could not create file directory")
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "could not create chunk")
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if _, err = tmp.Write(data); err != nil {
		cleanup()
		return errors.Wrap(err, "could not write chunk")
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "could not sync chunk")
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "could not close chunk")
	}

	if err = os.Rename(tmp.Name(), filepath.Join(dir, ChunkName(seq))); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "could not commit chunk")
	}
	return nil
}

func (b *fs) GetChunk(ctx context.Context, fileID string, seq int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFileID(fileID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(b.workspace, fileID, ChunkName(seq)))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%s/%d", fileID, seq)
	}
	return data, errors.Wrap(err, "could not read chunk")
}

func (b *fs) FileIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.workspace)
	if err != nil {
		return nil, errors.Wrap(err, "could not list workspace")
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		ids = append(ids, entry.Name())
	}

	return ids, nil
}

func (b *fs) RemoveFile(ctx context.Context, fileID string) error {
	if err := checkFileID(fileID); err != nil {
		return err
	}

	err := os.RemoveAll(filepath.Join(b.workspace, fileID))
	return errors.Wrap(err, "could not delete file chunks")
}

func (b *fs) Close() error {
	return nil
}
