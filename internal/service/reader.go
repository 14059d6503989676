package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/mdouchement/chunkstore/internal/storage"
	"github.com/pkg/errors"
)

var errClosed = errors.New("read on closed object")

type (
	// An ObjectReader reassembles stored files from their chunks.
	ObjectReader struct {
		database  database.Client
		storage   storage.Backend
		readAhead int
	}

	// An Object is a single-pass, in order, stream of the chunks of a stored file.
	// It is not safe for concurrent use.
	Object struct {
		Manifest *model.Manifest

		ctx      context.Context
		cancel   context.CancelFunc
		storage  storage.Backend
		prefetch chan fetched
		done     chan struct{}

		next      int
		delivered int64
		pending   []byte
		err       error
	}

	fetched struct {
		data []byte
		err  error
	}
)

// NewObjectReader returns a new ObjectReader.
// When readAhead is positive, up to readAhead chunks are fetched ahead of the consumer.
func NewObjectReader(database database.Client, storage storage.Backend, readAhead int) *ObjectReader {
	if readAhead < 0 {
		readAhead = 0
	}

	return &ObjectReader{
		database:  database,
		storage:   storage,
		readAhead: readAhead,
	}
}

// Open loads the manifest of the given file and returns its chunk stream.
// The identifier is validated before any store access.
func (s *ObjectReader) Open(ctx context.Context, id string) (*Object, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	manifest, err := findManifest(s.database, id)
	if err != nil {
		return nil, err
	}

	o := &Object{
		Manifest: manifest,
		storage:  s.storage,
	}
	o.ctx, o.cancel = context.WithCancel(ctx)

	if s.readAhead > 0 && manifest.ChunkCount > 1 {
		o.prefetch = make(chan fetched, s.readAhead)
		o.done = make(chan struct{})
		go o.fetchAhead()
	}
	return o, nil
}

// ReadAll loads the whole given file in memory.
// Files larger than limit bytes are refused with ErrObjectTooLarge, a zero limit disables the check.
func (s *ObjectReader) ReadAll(ctx context.Context, id string, limit int64) (*model.Manifest, []byte, error) {
	o, err := s.Open(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer o.Close()

	if limit > 0 && o.Manifest.Length > limit {
		return nil, nil, fail(ErrObjectTooLarge, nil, "%s is %d bytes, limit is %d", id, o.Manifest.Length, limit)
	}

	buf := bytes.NewBuffer(make([]byte, 0, o.Manifest.Length))
	for {
		data, err := o.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		buf.Write(data)
	}

	return o.Manifest, buf.Bytes(), nil
}

// Next returns the next chunk payload, or io.EOF once all the chunks have been delivered.
// Any failure is final: subsequent calls return the same error.
func (o *Object) Next() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}

	seq := o.next
	if seq >= o.Manifest.ChunkCount {
		o.err = io.EOF
		if o.delivered != o.Manifest.Length {
			o.err = fail(ErrCorruptObject, nil, "%s: read %d bytes out of %d", o.Manifest.ID, o.delivered, o.Manifest.Length)
		}
		return nil, o.err
	}

	data, err := o.fetch(seq)
	if err != nil {
		if cerr := o.ctx.Err(); cerr != nil {
			o.err = errors.Wrapf(cerr, "chunk %s/%d", o.Manifest.ID, seq)
			return nil, o.err
		}
		o.err = fail(ErrCorruptObject, err, "chunk %s/%d", o.Manifest.ID, seq)
		return nil, o.err
	}
	if err = o.verify(seq, data); err != nil {
		o.err = err
		return nil, o.err
	}

	o.next++
	o.delivered += int64(len(data))
	return data, nil
}

// Read implements io.Reader over the concatenated chunks.
// It must not be mixed with Next.
func (o *Object) Read(p []byte) (int, error) {
	for len(o.pending) == 0 {
		data, err := o.Next()
		if err != nil {
			return 0, err
		}
		o.pending = data
	}

	n := copy(p, o.pending)
	o.pending = o.pending[n:]
	return n, nil
}

// Close stops any further chunk read.
// Once it returns, no chunk read is pending.
func (o *Object) Close() error {
	o.cancel()
	if o.done != nil {
		<-o.done
	}
	if o.err == nil {
		o.err = errClosed
	}
	return nil
}

func (o *Object) fetch(seq int) ([]byte, error) {
	if o.prefetch == nil {
		return o.storage.GetChunk(o.ctx, o.Manifest.ID, seq)
	}

	f, ok := <-o.prefetch
	if !ok {
		return nil, errors.Wrap(o.ctx.Err(), "prefetch stopped")
	}
	return f.data, f.err
}

// fetchAhead reads the chunks in sequence order and queues them for Next.
// It stops on the first error or when the object is closed.
func (o *Object) fetchAhead() {
	defer close(o.done)
	defer close(o.prefetch)

	for seq := 0; seq < o.Manifest.ChunkCount; seq++ {
		if o.ctx.Err() != nil {
			return
		}

		data, err := o.storage.GetChunk(o.ctx, o.Manifest.ID, seq)

		select {
		case o.prefetch <- fetched{data: data, err: err}:
		case <-o.ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

func (o *Object) verify(seq int, data []byte) error {
	if expected := o.Manifest.ChunkLength(seq); len(data) != expected {
		return fail(ErrCorruptObject, nil, "chunk %s/%d: %d bytes, expected %d", o.Manifest.ID, seq, len(data), expected)
	}

	if len(o.Manifest.ChunkChecksums) != o.Manifest.ChunkCount {
		return nil
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != o.Manifest.ChunkChecksums[seq] {
		return fail(ErrCorruptObject, nil, "chunk %s/%d: checksum mismatch", o.Manifest.ID, seq)
	}
	return nil
}

// Verify reads every chunk of the given file and checks it against its manifest.
func (s *ObjectReader) Verify(ctx context.Context, id string) error {
	o, err := s.Open(ctx, id)
	if err != nil {
		return err
	}
	defer o.Close()

	for {
		if _, err = o.Next(); err != nil {
			break
		}
	}
	if err == io.EOF {
		return nil
	}
	return err
}
