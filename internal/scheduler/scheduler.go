package scheduler

import (
	"context"
	"time"

	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/service"
	"github.com/mdouchement/chunkstore/internal/storage"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Logger        logger.Logger
	Database      database.Client
	Storage       storage.Backend
	Uploads       *service.Uploads
	Specification string
	Grace         time.Duration
}

// Start lauches the scheduler asynchronously.
// The returned cron must be stopped on shutdown.
func Start(c Controller) (*cron.Cron, error) {
	cron := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	log := c.Logger.WithPrefix("[scheduler]")
	sweeper := NewSweeper(c.Logger, c.Database, c.Storage, c.Uploads, c.Grace)

	_, err := cron.AddFunc(c.Specification, func() {
		if _, err := sweeper.Sweep(context.Background()); err != nil {
			log.Error(err)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not register sweeper with %q", c.Specification)
	}
	log.Infof("Orphan sweeper task registered (%s, grace %s)", c.Specification, c.Grace)

	cron.Start()
	log.Info("Scheduler is running")
	return cron, nil
}
