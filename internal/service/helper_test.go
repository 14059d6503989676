package service

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/mdouchement/chunkstore/internal/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faultyBackend wraps a backend and fails the operations matched by its hooks.
type faultyBackend struct {
	storage.Backend

	mu        sync.Mutex
	failPut   func(seq int) bool
	failGet   func(seq int) bool
	corrupt   func(seq int) bool
	puts      []int
	gets      []int
	getCalled int32
}

func (b *faultyBackend) PutChunk(ctx context.Context, fileID string, seq int, data []byte) error {
	b.mu.Lock()
	b.puts = append(b.puts, seq)
	fail := b.failPut != nil && b.failPut(seq)
	b.mu.Unlock()

	if fail {
		return errInjected
	}
	return b.Backend.PutChunk(ctx, fileID, seq, data)
}

func (b *faultyBackend) GetChunk(ctx context.Context, fileID string, seq int) ([]byte, error) {
	atomic.AddInt32(&b.getCalled, 1)

	b.mu.Lock()
	b.gets = append(b.gets, seq)
	fail := b.failGet != nil && b.failGet(seq)
	corrupt := b.corrupt != nil && b.corrupt(seq)
	b.mu.Unlock()

	if fail {
		return nil, errInjected
	}

	data, err := b.Backend.GetChunk(ctx, fileID, seq)
	if err == nil && corrupt && len(data) > 0 {
		data = append([]byte(nil), data...)
		data[0] ^= 0xff
	}
	return data, err
}

func (b *faultyBackend) getSeqs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.gets...)
}

// countingClient records the database accesses and fails manifest creations when failCreate is set.
type countingClient struct {
	database.Client
	calls      int32
	failCreate error
}

func (c *countingClient) CreateManifest(m *model.Manifest) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.failCreate != nil {
		return "", c.failCreate
	}
	return c.Client.CreateManifest(m)
}

func (c *countingClient) FindManifest(id string) (*model.Manifest, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Client.FindManifest(id)
}

func (c *countingClient) ListManifests() ([]*model.Manifest, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Client.ListManifests()
}

type fixture struct {
	db      *countingClient
	storage *faultyBackend
	uploads *Uploads
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()

	db, err := database.StormOpen(filepath.Join(dir, "chunkstore.db"))
	require.NoError(t, err)

	fs, err := storage.NewFileSystem(filepath.Join(dir, "storage"))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		fs.Close()
	})

	return &fixture{
		db:      &countingClient{Client: db},
		storage: &faultyBackend{Backend: fs},
		uploads: NewUploads(),
	}
}

func (f *fixture) writer(chunkSize, concurrency int) *ObjectWriter {
	return NewObjectWriter(f.db, f.storage, f.uploads, chunkSize, concurrency)
}

func (f *fixture) reader(readAhead int) *ObjectReader {
	return NewObjectReader(f.db, f.storage, readAhead)
}

// payload returns n deterministic pseudo-random bytes.
func payload(n int) []byte {
	data := make([]byte, n)
	x := uint32(2463534242)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}
	return data
}
