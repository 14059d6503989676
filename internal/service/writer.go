package service

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/gofrs/uuid"
	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/mdouchement/chunkstore/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the size of the chunks when none is configured (255 KiB).
const DefaultChunkSize = 255 << 10

// An ObjectWriter splits uploaded streams into chunks and commits their manifest.
type ObjectWriter struct {
	database    database.Client
	storage     storage.Backend
	uploads     *Uploads
	chunkSize   int
	concurrency int
}

// NewObjectWriter returns a new ObjectWriter.
// Up to concurrency chunks are written in parallel, values below 2 write them sequentially.
// Files being written are registered in uploads, a nil uploads gets a private registry.
func NewObjectWriter(database database.Client, storage storage.Backend, uploads *Uploads, chunkSize, concurrency int) *ObjectWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if uploads == nil {
		uploads = NewUploads()
	}

	return &ObjectWriter{
		database:    database,
		storage:     storage,
		uploads:     uploads,
		chunkSize:   chunkSize,
		concurrency: concurrency,
	}
}

// ChunkSize returns the size of the written chunks.
func (s *ObjectWriter) ChunkSize() int {
	return s.chunkSize
}

// Write stores the content of r and returns the committed manifest.
// The manifest is created only once every chunk has been acknowledged by the storage.
func (s *ObjectWriter) Write(ctx context.Context, r io.Reader, filename, contentType string) (*model.Manifest, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fail(ErrUploadFailed, err, "could not generate identifier")
	}

	manifest := &model.Manifest{
		Filename:       filename,
		ContentType:    contentType,
		ChunkSize:      s.chunkSize,
		ChunkChecksums: make([]string, 0),
	}
	manifest.ID = id.String()
	fileID := manifest.ID

	s.uploads.register(fileID)
	defer s.uploads.release(fileID)

	h := md5.New()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var rerr error
	for seq := 0; gctx.Err() == nil; seq++ {
		window := make([]byte, s.chunkSize)
		n, err := io.ReadFull(r, window)
		if n > 0 {
			window = window[:n]
			sum := sha256.Sum256(window)
			h.Write(window)

			manifest.ChunkChecksums = append(manifest.ChunkChecksums, hex.EncodeToString(sum[:]))
			manifest.ChunkCount++
			manifest.Length += int64(n)

			seq := seq
			g.Go(func() error {
				if err := s.storage.PutChunk(gctx, fileID, seq, window); err != nil {
					return fail(ErrUploadFailed, err, "chunk %s/%d", fileID, seq)
				}
				return nil
			})
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			rerr = fail(ErrUploadFailed, err, "read %s", fileID)
			break
		}
	}

	// Every chunk write must be joined before the manifest is computed.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if rerr != nil {
		return nil, rerr
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(ErrUploadFailed, err, "upload %s", manifest.ID)
	}

	manifest.Checksum = hex.EncodeToString(h.Sum(nil))

	if _, err := s.database.CreateManifest(manifest); err != nil {
		return nil, fail(ErrUploadFailed, err, "manifest %s", manifest.ID)
	}
	return manifest, nil
}
