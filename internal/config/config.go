// Package config loads the chunkstore runtime configuration.
//
// Values are resolved in this order: defaults, optional TOML file, environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDatabaseName = "chunkstore.db"
	DefaultStorageName  = "storage"

	DefaultBinding           = "0.0.0.0"
	DefaultPort              = "5000"
	DefaultLogLevel          = "info"
	DefaultChunkSize         = 255 << 10
	DefaultUploadConcurrency = 4
	DefaultReadAhead         = 2
	DefaultMaxExtractBytes   = 64 << 20
	DefaultSweeperSpec       = "@every 10m"
	DefaultSweeperGrace      = time.Hour

	MinChunkSize = 1 << 10
	MaxChunkSize = 16 << 20

	// EnvConfig names the environment variable holding the configuration file path.
	EnvConfig = "CHUNKSTORE_CONFIG"

	envPrefix = "CHUNKSTORE_"
)

// Storage backends.
const (
	BackendFileSystem = "file_system"
	BackendBolt       = "bolt"
	BackendMinio      = "minio"
)

type (
	// Config defines runtime configuration for chunkstore.
	Config struct {
		Binding           string  `toml:"binding"`
		Port              string  `toml:"port"`
		DatabasePath      string  `toml:"database_path"`
		LogLevel          string  `toml:"log_level"`
		Storage           Storage `toml:"storage"`
		ChunkSize         int     `toml:"chunk_size"`
		UploadConcurrency int     `toml:"upload_concurrency"`
		ReadAhead         int     `toml:"read_ahead"`
		MaxUploadBytes    int64   `toml:"max_upload_bytes"`
		MaxExtractBytes   int64   `toml:"max_extract_bytes"`
		Sweeper           Sweeper `toml:"sweeper"`
	}

	// Storage selects and configures the chunk backend.
	Storage struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
		Minio   Minio  `toml:"minio"`
	}

	// Minio holds the S3 compatible backend settings.
	Minio struct {
		Endpoint  string `toml:"endpoint"`
		AccessKey string `toml:"access_key"`
		SecretKey string `toml:"secret_key"`
		Bucket    string `toml:"bucket"`
	}

	// Sweeper configures the orphan chunks sweeper.
	Sweeper struct {
		Specification string   `toml:"specification"`
		Grace         Duration `toml:"grace"`
	}

	// Duration is a time.Duration written as "90s" or "1h30m" in TOML files.
	Duration struct {
		time.Duration
	}
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Binding:      DefaultBinding,
		Port:         DefaultPort,
		DatabasePath: DefaultDatabaseName,
		LogLevel:     DefaultLogLevel,
		Storage: Storage{
			Backend: BackendFileSystem,
			Path:    DefaultStorageName,
		},
		ChunkSize:         DefaultChunkSize,
		UploadConcurrency: DefaultUploadConcurrency,
		ReadAhead:         DefaultReadAhead,
		MaxExtractBytes:   DefaultMaxExtractBytes,
		Sweeper: Sweeper{
			Specification: DefaultSweeperSpec,
			Grace:         Duration{DefaultSweeperGrace},
		},
	}
}

// Load resolves the configuration.
// An empty path falls back to the CHUNKSTORE_CONFIG variable, no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "could not parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	// Directory conventions shared with container deployments.
	if dir := os.Getenv("DATABASE_PATH"); dir != "" {
		c.DatabasePath = filepath.Join(dir, DefaultDatabaseName)
	}
	if dir := os.Getenv("STORAGE_PATH"); dir != "" {
		c.Storage.Path = filepath.Join(dir, DefaultStorageName)
	}

	strs := map[string]*string{
		"BINDING":               &c.Binding,
		"PORT":                  &c.Port,
		"DATABASE_PATH":         &c.DatabasePath,
		"LOG_LEVEL":             &c.LogLevel,
		"STORAGE_BACKEND":       &c.Storage.Backend,
		"STORAGE_PATH":          &c.Storage.Path,
		"MINIO_ENDPOINT":        &c.Storage.Minio.Endpoint,
		"MINIO_ACCESS_KEY":      &c.Storage.Minio.AccessKey,
		"MINIO_SECRET_KEY":      &c.Storage.Minio.SecretKey,
		"MINIO_BUCKET":          &c.Storage.Minio.Bucket,
		"SWEEPER_SPECIFICATION": &c.Sweeper.Specification,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE":         &c.ChunkSize,
		"UPLOAD_CONCURRENCY": &c.UploadConcurrency,
		"READ_AHEAD":         &c.ReadAhead,
	}
	for name, dst := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", envPrefix, name)
			}
			*dst = n
		}
	}

	int64s := map[string]*int64{
		"MAX_UPLOAD_BYTES":  &c.MaxUploadBytes,
		"MAX_EXTRACT_BYTES": &c.MaxExtractBytes,
	}
	for name, dst := range int64s {
		if v, ok := lookup(name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", envPrefix, name)
			}
			*dst = n
		}
	}

	if v, ok := lookup("SWEEPER_GRACE"); ok {
		if err := c.Sweeper.Grace.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrapf(err, "invalid %sSWEEPER_GRACE", envPrefix)
		}
	}
	return nil
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + name))
	return v, v != ""
}

// Validate checks the consistency of the configuration.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}

	switch c.Storage.Backend {
	case BackendFileSystem, BackendBolt:
		if c.Storage.Path == "" {
			return errors.Errorf("storage.path is required by the %s backend", c.Storage.Backend)
		}
	case BackendMinio:
		m := c.Storage.Minio
		if m.Endpoint == "" || m.AccessKey == "" || m.SecretKey == "" || m.Bucket == "" {
			return errors.New("storage.minio endpoint, access_key, secret_key and bucket are required by the minio backend")
		}
	default:
		return errors.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}

	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return errors.Errorf("chunk_size must be between %d and %d bytes, got %d", MinChunkSize, MaxChunkSize, c.ChunkSize)
	}
	if c.UploadConcurrency < 1 {
		return errors.Errorf("upload_concurrency must be positive, got %d", c.UploadConcurrency)
	}
	if c.ReadAhead < 0 {
		return errors.Errorf("read_ahead must not be negative, got %d", c.ReadAhead)
	}
	if c.MaxUploadBytes < 0 {
		return errors.Errorf("max_upload_bytes must not be negative, got %d", c.MaxUploadBytes)
	}
	if c.MaxExtractBytes <= 0 {
		return errors.Errorf("max_extract_bytes must be positive, got %d", c.MaxExtractBytes)
	}

	if c.Sweeper.Specification != "" {
		if _, err := cron.ParseStandard(c.Sweeper.Specification); err != nil {
			return errors.Wrap(err, "invalid sweeper.specification")
		}
	}
	if c.Sweeper.Grace.Duration < 0 {
		return errors.New("sweeper.grace must not be negative")
	}
	return nil
}

// Listen returns the server listening address.
func (c *Config) Listen() string {
	return c.Binding + ":" + c.Port
}
