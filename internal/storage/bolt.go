package storage

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type boltdb struct {
	db *bolt.DB
}

// NewBolt returns a new BoltDB backend.
// Each file owns a bucket where chunks are keyed by their big-endian sequence number.
func NewBolt(path string) (Backend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not open chunk database")
	}

	return &boltdb{
		db: db,
	}, nil
}

func (b *boltdb) Name() string {
	return "bolt"
}

func (b *boltdb) PutChunk(ctx context.Context, fileID string, seq int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFileID(fileID); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(fileID))
		if err != nil {
			return err
		}

		return bucket.Put(chunkKey(seq), data)
	})
	return errors.Wrap(err, "could not write chunk")
}

func (b *boltdb) GetChunk(ctx context.Context, fileID string, seq int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFileID(fileID); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(fileID))
		if bucket == nil {
			return errors.Wrapf(ErrNotFound, "%s/%d", fileID, seq)
		}

		v := bucket.Get(chunkKey(seq))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "%s/%d", fileID, seq)
		}

		// v is only valid during the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if IsNotFound(err) {
		return nil, err
	}
	return data, errors.Wrap(err, "could not read chunk")
}

func (b *boltdb) FileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	return ids, errors.Wrap(err, "could not list files")
}

func (b *boltdb) RemoveFile(ctx context.Context, fileID string) error {
	if err := checkFileID(fileID); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(fileID))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	return errors.Wrap(err, "could not delete file chunks")
}

func (b *boltdb) Close() error {
	return b.db.Close()
}

func chunkKey(seq int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
