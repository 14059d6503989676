package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 3, 4, 5, 16, 17, 1000, 64<<10 + 1}

	for _, readAhead := range []int{0, 3} {
		for _, length := range lengths {
			f := setup(t)
			ctx := context.Background()
			content := payload(length)

			m, err := f.writer(4<<10, 2).Write(ctx, bytes.NewReader(content), "file.bin", "")
			require.NoError(t, err)

			o, err := f.reader(readAhead).Open(ctx, m.ID)
			require.NoError(t, err)

			data, err := io.ReadAll(o)
			require.NoError(t, err, "length %d", length)
			assert.True(t, bytes.Equal(content, data), "length %d, read ahead %d", length, readAhead)
			assert.NoError(t, o.Close())
		}
	}
}

func TestReadScenarioTenBytes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader([]byte("0123456789")), "ten.txt", "text/plain")
	require.NoError(t, err)

	o, err := f.reader(0).Open(ctx, m.ID)
	require.NoError(t, err)
	defer o.Close()

	var chunks []string
	for {
		data, err := o.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, string(data))
	}
	assert.Equal(t, []string{"0123", "4567", "89"}, chunks)

	// The stream is single-pass.
	_, err = o.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReadEmptyObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(nil), "empty", "")
	require.NoError(t, err)

	manifest, data, err := f.reader(0).ReadAll(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.EqualValues(t, 0, manifest.Length)
	assert.Empty(t, f.storage.getSeqs())
}

func TestReadNeverIssuedID(t *testing.T) {
	f := setup(t)

	_, err := f.reader(0).Open(context.Background(), uuid.Must(uuid.NewV4()).String())
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Zero(t, f.storage.getCalled)
}

func TestReadInvalidIDDoesNotTouchStores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, id := range []string{"", "42", "../../etc/passwd", "not-a-uuid", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"} {
		_, err := f.reader(0).Open(ctx, id)
		assert.Equal(t, ErrInvalidIdentifier, errors.Cause(err), id)

		_, _, err = f.reader(0).ReadAll(ctx, id, 0)
		assert.Equal(t, ErrInvalidIdentifier, errors.Cause(err), id)
	}

	assert.Zero(t, f.db.calls)
	assert.Zero(t, f.storage.getCalled)
}

func TestReadChunkFailureIsCorruptObject(t *testing.T) {
	for _, readAhead := range []int{0, 2} {
		f := setup(t)
		ctx := context.Background()

		m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(20)), "file.bin", "")
		require.NoError(t, err)
		require.Equal(t, 5, m.ChunkCount)

		f.storage.failGet = func(seq int) bool { return seq == 2 }

		o, err := f.reader(readAhead).Open(ctx, m.ID)
		require.NoError(t, err)

		var delivered [][]byte
		for {
			data, err := o.Next()
			if err != nil {
				assert.Equal(t, ErrCorruptObject, errors.Cause(err), "%+v", err)
				break
			}
			delivered = append(delivered, data)
		}
		assert.Len(t, delivered, 2)

		// The failure is sticky, the stream never resumes nor reports success.
		_, err = o.Next()
		assert.Equal(t, ErrCorruptObject, errors.Cause(err))
		o.Close()

		_, data, err := f.reader(readAhead).ReadAll(ctx, m.ID, 0)
		assert.Nil(t, data)
		assert.Equal(t, ErrCorruptObject, errors.Cause(err))

		o, err = f.reader(readAhead).Open(ctx, m.ID)
		require.NoError(t, err)
		_, err = io.ReadAll(o)
		assert.Equal(t, ErrCorruptObject, errors.Cause(err))
		o.Close()
	}
}

func TestReadMissingChunkIsCorruptObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(20)), "file.bin", "")
	require.NoError(t, err)
	require.NoError(t, f.storage.RemoveFile(ctx, m.ID))

	_, _, err = f.reader(0).ReadAll(ctx, m.ID, 0)
	assert.Equal(t, ErrCorruptObject, errors.Cause(err))
}

func TestReadDamagedChunkIsCorruptObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(20)), "file.bin", "")
	require.NoError(t, err)

	f.storage.corrupt = func(seq int) bool { return seq == 4 }
	_, _, err = f.reader(0).ReadAll(ctx, m.ID, 0)
	assert.Equal(t, ErrCorruptObject, errors.Cause(err))
}

func TestReadTruncatedChunkIsCorruptObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(12)), "file.bin", "")
	require.NoError(t, err)
	require.NoError(t, f.storage.Backend.PutChunk(ctx, m.ID, 1, []byte("ab")))

	_, _, err = f.reader(0).ReadAll(ctx, m.ID, 0)
	assert.Equal(t, ErrCorruptObject, errors.Cause(err))
}

func TestReadInconsistentManifestIsCorruptObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id := uuid.Must(uuid.NewV4()).String()
	require.NoError(t, f.storage.Backend.PutChunk(ctx, id, 0, []byte("abcd")))

	// The manifest claims more bytes than its chunks hold.
	m := &model.Manifest{Length: 6, ChunkSize: 4, ChunkCount: 1}
	m.ID = id
	_, err := f.db.CreateManifest(m)
	require.NoError(t, err)

	_, _, err = f.reader(0).ReadAll(ctx, id, 0)
	assert.Equal(t, ErrCorruptObject, errors.Cause(err))
}

func TestReadOrderIsAscending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	content := payload(40)

	// Physically store the chunks in reverse order.
	id := uuid.Must(uuid.NewV4()).String()
	for seq := 9; seq >= 0; seq-- {
		require.NoError(t, f.storage.Backend.PutChunk(ctx, id, seq, content[seq*4:seq*4+4]))
	}
	m := &model.Manifest{Length: 40, ChunkSize: 4, ChunkCount: 10}
	m.ID = id
	_, err := f.db.CreateManifest(m)
	require.NoError(t, err)

	for _, readAhead := range []int{0, 4} {
		f.storage.gets = nil

		_, data, err := f.reader(readAhead).ReadAll(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, content, data)

		seqs := f.storage.getSeqs()
		assert.True(t, sort.IntsAreSorted(seqs), "%v", seqs)
		assert.Len(t, seqs, 10)
	}
}

func TestReadCloseStopsChunkReads(t *testing.T) {
	for _, readAhead := range []int{0, 1, 2, 8} {
		f := setup(t)
		ctx := context.Background()

		m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(400)), "file.bin", "")
		require.NoError(t, err)

		o, err := f.reader(readAhead).Open(ctx, m.ID)
		require.NoError(t, err)

		_, err = o.Next()
		require.NoError(t, err)
		require.NoError(t, o.Close())

		// One delivered chunk, a full read-ahead buffer and one fetch waiting for room.
		reads := len(f.storage.getSeqs())
		bound := 1
		if readAhead > 0 {
			bound = readAhead + 2
		}
		assert.LessOrEqual(t, reads, bound, "read ahead %d", readAhead)

		_, err = o.Next()
		assert.Error(t, err)
		assert.Len(t, f.storage.getSeqs(), reads, "read ahead %d", readAhead)
	}
}

func TestReadAllLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(10)), "file.bin", "")
	require.NoError(t, err)

	_, _, err = f.reader(0).ReadAll(ctx, m.ID, 9)
	assert.Equal(t, ErrObjectTooLarge, errors.Cause(err))
	assert.Empty(t, f.storage.getSeqs())

	_, data, err := f.reader(0).ReadAll(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

type upperExtractor struct {
	err error
}

func (e *upperExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return string(bytes.ToUpper(data)), nil
}

func TestText(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader([]byte("hello world")), "hello.txt", "text/plain")
	require.NoError(t, err)

	manifest, text, err := f.reader(0).Text(ctx, m.ID, 0, &upperExtractor{})
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", text)
	assert.Equal(t, m.ID, manifest.ID)

	_, _, err = f.reader(0).Text(ctx, m.ID, 0, &upperExtractor{err: errors.New("not a document")})
	assert.Equal(t, ErrExtractionFailed, errors.Cause(err))
	assert.Contains(t, err.Error(), "not a document")

	_, _, err = f.reader(0).Text(ctx, "nope", 0, &upperExtractor{})
	assert.Equal(t, ErrInvalidIdentifier, errors.Cause(err))
}

func TestVerify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.writer(4, 1).Write(ctx, bytes.NewReader(payload(20)), "file.bin", "")
	require.NoError(t, err)

	assert.NoError(t, f.reader(2).Verify(ctx, m.ID))

	f.storage.corrupt = func(seq int) bool { return seq == 3 }
	assert.Equal(t, ErrCorruptObject, errors.Cause(f.reader(2).Verify(ctx, m.ID)))

	assert.Equal(t, ErrNotFound, errors.Cause(f.reader(0).Verify(ctx, uuid.Must(uuid.NewV4()).String())))
}
