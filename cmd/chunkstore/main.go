package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/mdouchement/chunkstore/internal/config"
	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/extract"
	"github.com/mdouchement/chunkstore/internal/scheduler"
	"github.com/mdouchement/chunkstore/internal/service"
	"github.com/mdouchement/chunkstore/internal/storage"
	"github.com/mdouchement/chunkstore/internal/webserver"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfgpath string
	binding string
	port    string
)

func main() {
	c := &cobra.Command{
		Use:     "chunkstore",
		Short:   "Chunked file store server",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.ExactArgs(0),
	}
	c.PersistentFlags().StringVarP(&cfgpath, "config", "c", "", "Configuration file (default $"+config.EnvConfig+")")

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for chunkstore",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)
	c.AddCommand(fsckCmd)
	c.AddCommand(sweepCmd)

	serverCmd.Flags().StringVarP(&binding, "binding", "b", "", "Server's binding (default "+config.DefaultBinding+")")
	serverCmd.Flags().StringVarP(&port, "port", "p", "", "Server's port (default "+config.DefaultPort+")")
	c.AddCommand(serverCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			return database.StormInit(cfg.DatabasePath)
		},
	}

	//

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			return database.StormReIndex(cfg.DatabasePath)
		},
	}

	//

	fsckCmd = &cobra.Command{
		Use:   "fsck",
		Short: "Check that every stored file is complete and intact",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, log, db, backend, err := open(c.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			defer backend.Close()

			manifests, err := service.NewCatalog(db).List()
			if err != nil {
				return err
			}

			reader := service.NewObjectReader(db, backend, cfg.ReadAhead)
			log = log.WithPrefix("[fsck]")

			var corrupted int
			for _, manifest := range manifests {
				if err := reader.Verify(c.Context(), manifest.ID); err != nil {
					corrupted++
					log.Errorf("%s (%s): %v", manifest.ID, manifest.Filename, err)
				}
			}

			log.Infof("%d files checked, %d corrupted", len(manifests), corrupted)
			if corrupted > 0 {
				return errors.Errorf("%d corrupted files", corrupted)
			}
			return nil
		},
	}

	//

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove the chunks of failed uploads (the server must be stopped)",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			_, log, db, backend, err := open(c.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			defer backend.Close()

			removed, err := scheduler.NewSweeper(log, db, backend, nil, 0).Sweep(c.Context())
			if err != nil {
				return err
			}

			log.Infof("%d orphans removed", len(removed))
			return nil
		},
	}

	//

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start server",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, log, db, backend, err := open(c.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			defer backend.Close()

			if binding != "" {
				cfg.Binding = binding
			}
			if port != "" {
				cfg.Port = port
			}

			uploads := service.NewUploads()

			ctrl := webserver.Controller{
				Version:  c.Parent().Version,
				Logger:   log,
				Database: db,
				Storage:  backend,
				Uploads:  uploads,
				//
				ChunkSize:         cfg.ChunkSize,
				UploadConcurrency: cfg.UploadConcurrency,
				ReadAhead:         cfg.ReadAhead,
				MaxUploadBytes:    cfg.MaxUploadBytes,
				MaxExtractBytes:   cfg.MaxExtractBytes,
				Extractor:         extract.NewPDF(),
			}

			//

			if cfg.Sweeper.Specification != "" {
				cron, err := scheduler.Start(scheduler.Controller{
					Logger:        log,
					Database:      db,
					Storage:       backend,
					Uploads:       uploads,
					Specification: cfg.Sweeper.Specification,
					Grace:         cfg.Sweeper.Grace.Duration,
				})
				if err != nil {
					return err
				}
				defer func() {
					<-cron.Stop().Done()
				}()
			}

			//

			engine := webserver.EchoEngine(ctrl)
			webserver.PrintRoutes(engine)

			errc := make(chan error, 1)
			go func() {
				log.Infof("Server listening on %s (%s storage)", cfg.Listen(), backend.Name())
				errc <- engine.Start(cfg.Listen())
			}()

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigc)

			select {
			case err := <-errc:
				return errors.Wrap(err, "could not run server")
			case sig := <-sigc:
				log.Infof("Received %s, shutting down", sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := engine.Shutdown(ctx); err != nil {
				return errors.Wrap(err, "could not shutdown server")
			}
			if err := <-errc; err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "could not run server")
			}
			return nil
		},
	}
)

// open loads the configuration and opens the stores it describes.
func open(ctx context.Context) (config.Config, logger.Logger, database.Client, storage.Backend, error) {
	cfg, err := config.Load(cfgpath)
	if err != nil {
		return cfg, nil, nil, nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, nil, errors.Wrap(err, "invalid log level")
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logger.LogrusTextFormatter{
		DisableColors:   false,
		ForceColors:     true,
		ForceFormatting: true,
		PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log := logger.WrapLogrus(l)

	//

	db, err := database.StormOpen(cfg.DatabasePath)
	if err != nil {
		return cfg, nil, nil, nil, errors.Wrap(err, "could not open database")
	}

	//

	backend, err := storage.Open(ctx, storage.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		Minio: storage.MinioOptions{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			Bucket:    cfg.Storage.Minio.Bucket,
		},
	})
	if err != nil {
		db.Close()
		return cfg, nil, nil, nil, errors.Wrap(err, "could not open storage")
	}

	return cfg, log, db, backend, nil
}
