package database

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/chunkstore/internal/model"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type strm struct {
	db *storm.DB
}

// ErrDuplicateID is returned when a manifest is created with an already used ID.
var ErrDuplicateID = errors.New("manifest ID already exists")

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(json.Codec)

// StormLockTimeout bounds the wait for the database file lock held by another process.
var StormLockTimeout = 1 * time.Second

func connect(database string) (*storm.DB, error) {
	db, err := storm.Open(database, StormCodec, storm.BoltOptions(0600, &bolt.Options{
		Timeout: StormLockTimeout,
	}))
	return db, errors.Wrap(err, "could not get database connection")
}

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := connect(database)
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Init(&model.Manifest{})
	return errors.Wrap(err, "could not init manifest index")
}

// StormReIndex rebuilds the indexes of all the buckets.
func StormReIndex(database string) error {
	db, err := connect(database)
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.ReIndex(&model.Manifest{})
	return errors.Wrap(err, "could not ReIndex manifests")
}

// StormOpen opens the database and returns a Client.
func StormOpen(database string) (Client, error) {
	db, err := connect(database)
	if err != nil {
		return nil, err
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Close() error {
	return c.db.Close()
}

func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

//
// Manifest
//

func (c *strm) CreateManifest(m *model.Manifest) (string, error) {
	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
	}

	tx, err := c.db.Begin(true)
	if err != nil {
		return "", errors.Wrap(err, "could not begin transaction")
	}
	defer tx.Rollback()

	var existing model.Manifest
	err = tx.One("ID", m.GetID(), &existing)
	if err == nil {
		return "", errors.Wrap(ErrDuplicateID, m.GetID())
	}
	if errors.Cause(err) != storm.ErrNotFound {
		return "", errors.Wrap(err, "could not check manifest")
	}

	t := time.Now().UTC()
	m.SetCreatedAt(t)
	m.SetUpdatedAt(t)

	if err = tx.Save(m); err != nil {
		return "", errors.Wrap(err, "could not save the manifest")
	}

	err = tx.Commit()
	return m.GetID(), errors.Wrap(err, "could not commit the manifest")
}

func (c *strm) FindManifest(id string) (*model.Manifest, error) {
	var manifest model.Manifest
	err := c.db.One("ID", id, &manifest)
	return &manifest, errors.Wrap(err, "could not find manifest")
}

func (c *strm) ListManifests() ([]*model.Manifest, error) {
	manifests := make([]*model.Manifest, 0)
	if err := c.db.All(&manifests); err != nil {
		return manifests, errors.Wrap(err, "could not get all manifests")
	}

	sort.SliceStable(manifests, func(i, j int) bool {
		a, b := manifests[i].CreatedAt, manifests[j].CreatedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})
	return manifests, nil
}
