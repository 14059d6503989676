package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) Client {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chunkstore.db")
	require.NoError(t, StormInit(path))

	db, err := StormOpen(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateManifest(t *testing.T) {
	db := open(t)

	m := &model.Manifest{
		Filename:       "report.pdf",
		ContentType:    "application/pdf",
		Length:         10,
		ChunkSize:      4,
		ChunkCount:     3,
		ChunkChecksums: []string{"a", "b", "c"},
		Checksum:       "d41d8cd98f00b204e9800998ecf8427e",
	}

	id, err := db.CreateManifest(m)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = uuid.FromString(id)
	assert.NoError(t, err)
	assert.NotNil(t, m.CreatedAt)

	found, err := db.FindManifest(id)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", found.Filename)
	assert.Equal(t, "application/pdf", found.ContentType)
	assert.EqualValues(t, 10, found.Length)
	assert.Equal(t, 3, found.ChunkCount)
	assert.Equal(t, []string{"a", "b", "c"}, found.ChunkChecksums)
	assert.WithinDuration(t, *m.CreatedAt, *found.CreatedAt, time.Second)
}

func TestCreateManifestKeepsGivenID(t *testing.T) {
	db := open(t)

	m := &model.Manifest{Filename: "empty.bin"}
	m.ID = uuid.Must(uuid.NewV4()).String()

	id, err := db.CreateManifest(m)
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)

	_, err = db.CreateManifest(&model.Manifest{Base: model.Base{ID: id}, Filename: "other.bin"})
	assert.Equal(t, ErrDuplicateID, errors.Cause(err))

	found, err := db.FindManifest(id)
	require.NoError(t, err)
	assert.Equal(t, "empty.bin", found.Filename)
}

func TestFindManifestNotFound(t *testing.T) {
	db := open(t)

	_, err := db.FindManifest(uuid.Must(uuid.NewV4()).String())
	assert.Error(t, err)
	assert.True(t, db.IsNotFound(err))
	assert.False(t, db.IsNotFound(errors.New("boom")))
}

func TestListManifests(t *testing.T) {
	db := open(t)

	manifests, err := db.ListManifests()
	require.NoError(t, err)
	assert.Empty(t, manifests)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := db.CreateManifest(&model.Manifest{Filename: name})
		require.NoError(t, err)
	}

	manifests, err = db.ListManifests()
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Equal(t, "a.txt", manifests[0].Filename)
	assert.Equal(t, "b.txt", manifests[1].Filename)
	assert.Equal(t, "c.txt", manifests[2].Filename)
}

func TestStormOpenLocked(t *testing.T) {
	timeout := StormLockTimeout
	StormLockTimeout = 100 * time.Millisecond
	defer func() { StormLockTimeout = timeout }()

	path := filepath.Join(t.TempDir(), "chunkstore.db")

	db, err := StormOpen(path)
	require.NoError(t, err)
	defer db.Close()

	start := time.Now()
	_, err = StormOpen(path)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Error(t, StormInit(path))
	assert.Error(t, StormReIndex(path))
}
