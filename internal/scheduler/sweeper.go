package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/service"
	"github.com/mdouchement/chunkstore/internal/storage"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

// A Sweeper removes the chunks of failed uploads.
//
// Chunks are written before their manifest, so chunks without manifest are either
// an upload in progress or the leftovers of an aborted one. Uploads in flight are
// never touched, and an id is only swept once it has stayed orphaned for the grace
// period across passes.
type Sweeper struct {
	logger   logger.Logger
	database database.Client
	storage  storage.Backend
	uploads  *service.Uploads
	grace    time.Duration
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewSweeper returns a new Sweeper.
// uploads must be the registry of the writers sharing the storage, a nil one means no upload runs.
// A zero grace removes settled orphans on the first pass.
func NewSweeper(log logger.Logger, database database.Client, storage storage.Backend, uploads *service.Uploads, grace time.Duration) *Sweeper {
	if uploads == nil {
		uploads = service.NewUploads()
	}

	return &Sweeper{
		logger:   log.WithPrefix("[sweeper]"),
		database: database,
		storage:  storage,
		uploads:  uploads,
		grace:    grace,
		now:      time.Now,
		seen:     map[string]time.Time{},
	}
}

// Sweep runs one pass and returns the removed file ids.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.storage.FileIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list stored files")
	}

	now := s.now()
	seen := make(map[string]time.Time, len(s.seen))
	var removed []string

	for _, id := range ids {
		// The manifest lookup and the removal run while no upload of id can settle.
		settled, err := s.uploads.WhenSettled(id, func() error {
			_, err := s.database.FindManifest(id)
			if err == nil {
				return nil
			}
			if !s.database.IsNotFound(err) {
				return errors.Wrapf(err, "could not check manifest %s", id)
			}

			first, ok := s.seen[id]
			if !ok {
				first = now
			}

			if now.Sub(first) < s.grace {
				seen[id] = first
				return nil
			}

			if err = s.storage.RemoveFile(ctx, id); err != nil {
				// Retried on the next pass.
				seen[id] = first
				s.logger.Errorf("could not remove orphan %s: %v", id, err)
				return nil
			}
			removed = append(removed, id)
			s.logger.Infof("Removed orphan chunks of %s", id)
			return nil
		})
		if err != nil {
			return removed, err
		}
		if !settled {
			s.logger.Debugf("Skipped %s, upload in flight", id)
		}
	}

	s.seen = seen
	return removed, nil
}
