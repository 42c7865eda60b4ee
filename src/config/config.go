package config

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const (
	defaultChunkSizeBytes = 32 * units.KiB
	defaultGzipLevel      = 6

	PolicySequential = "sequential"
	PolicyRandom     = "random"
)

type S3Config struct {
	Region          string `toml:"region,omitempty"`
	AccessKey       string `toml:"access_key,omitempty"`
	SecretAccessKey string `toml:"secret_key,omitempty"`
	Provider        string `toml:"provider,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	Force           bool   `toml:"force,omitempty"`
	RoleArn         string `toml:"role_arn,omitempty"`
}

type GCSConfig struct {
	Credential string `toml:"credential,omitempty"`
}

type CommonConfig struct {
	PathBase  string `toml:"path_base"`
	Files     int    `toml:"files"`
	Cols      int    `toml:"cols"`
	Rows      int    `toml:"rows"`
	Compress  bool   `toml:"gz"`
	Table     string `toml:"table"`
	Policy    string `toml:"policy"`
	Seed      uint64 `toml:"seed"`
	Threads   int    `toml:"threads"`
	ChunkSize string `toml:"chunk_size"`
	GzipLevel int    `toml:"gzip_level"`

	// CheckTable rejects table names the SQL parser cannot read as a single identifier.
	CheckTable bool `toml:"check_table"`

	// ChunkSizeBytes is derived at runtime and not read from config.
	ChunkSizeBytes int `toml:"-"`
}

type Config struct {
	Common    CommonConfig `toml:"common"`
	S3Config  *S3Config    `toml:"s3,omitempty"`
	GCSConfig *GCSConfig   `toml:"gcs,omitempty"`
}

// Default returns the configuration used when neither a config file nor flags set a value.
func Default() *Config {
	return &Config{
		Common: CommonConfig{
			Files:     1,
			Cols:      1,
			Rows:      1,
			Policy:    PolicySequential,
			Threads:   1,
			GzipLevel: defaultGzipLevel,
		},
	}
}

// Load decodes a TOML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Annotatef(err, "failed to decode config %s", path)
	}
	return cfg, nil
}

// Normalize resolves derived config values after loading.
func Normalize(cfg *Config) error {
	chunkBytes, err := cfg.Common.resolveChunkSizeBytes()
	if err != nil {
		return err
	}
	cfg.Common.ChunkSizeBytes = chunkBytes
	cfg.Common.Policy = strings.ToLower(strings.TrimSpace(cfg.Common.Policy))
	if cfg.Common.Policy == "" {
		cfg.Common.Policy = PolicySequential
	}
	return nil
}

// Validate returns a user-friendly error if the configuration is invalid.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Common.PathBase == "" {
		errs = append(errs, "path base is required")
	} else if _, prefix := SplitPathBase(cfg.Common.PathBase); prefix == "" {
		errs = append(errs, "path base must end with a file prefix")
	}
	if cfg.Common.Files < 1 {
		errs = append(errs, "files must be at least 1")
	}
	if cfg.Common.Cols < 0 {
		errs = append(errs, "cols must be >= 0")
	}
	if cfg.Common.Rows < 0 {
		errs = append(errs, "rows must be >= 0")
	}
	if cfg.Common.Rows > 0 && cfg.Common.Files > 0 &&
		int64(cfg.Common.Files) > math.MaxInt64/int64(cfg.Common.Rows) {
		errs = append(errs, "files*rows overflows the row index")
	}
	if cfg.Common.Threads < 1 {
		errs = append(errs, "threads must be at least 1")
	}
	if cfg.Common.ChunkSizeBytes <= 0 {
		errs = append(errs, "chunk_size must be greater than 0")
	}
	if cfg.Common.GzipLevel < -2 || cfg.Common.GzipLevel > 9 {
		errs = append(errs, "gzip_level must be between -2 and 9")
	}

	switch cfg.Common.Policy {
	case PolicySequential, PolicyRandom:
	default:
		errs = append(errs, "policy must be sequential or random")
	}

	if cfg.S3Config != nil && cfg.GCSConfig != nil {
		errs = append(errs, "only one of [s3] or [gcs] can be configured")
	}

	if len(errs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("invalid config:\n")
	for _, err := range errs {
		sb.WriteString(" - ")
		sb.WriteString(err)
		sb.WriteString("\n")
	}
	return errors.New(strings.TrimRight(sb.String(), "\n"))
}

func (c *CommonConfig) resolveChunkSizeBytes() (int, error) {
	if c.ChunkSize == "" {
		return defaultChunkSizeBytes, nil
	}
	bytes, err := units.RAMInBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk_size %q: %w", c.ChunkSize, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("invalid chunk_size %q: must be greater than 0", c.ChunkSize)
	}
	return int(bytes), nil
}

// FileSuffix is the extension of every generated data file.
func (c *CommonConfig) FileSuffix() string {
	if c.Compress {
		return "csv.gz"
	}
	return "csv"
}

// SplitPathBase splits a path base into the storage root and the file prefix.
// "data/test" gives ("data", "test"), "s3://bucket/dir/t" gives ("s3://bucket/dir", "t")
// and a bare "t" is rooted at the working directory.
func SplitPathBase(pathBase string) (root, prefix string) {
	idx := strings.LastIndex(pathBase, "/")
	if idx < 0 {
		return ".", pathBase
	}
	root, prefix = pathBase[:idx], pathBase[idx+1:]
	if root == "" {
		root = "/"
	}
	if strings.HasSuffix(root, ":/") {
		// "s3://bucket" was cut at the scheme separator.
		return pathBase, ""
	}
	return root, prefix
}

// GetStore initializes and returns an ExternalStorage rooted at the directory part of the path base.
func GetStore(ctx context.Context, c *Config) (storage.ExternalStorage, error) {
	var op *storage.BackendOptions
	if c.S3Config != nil {
		op = &storage.BackendOptions{S3: storage.S3BackendOptions{
			Region:          c.S3Config.Region,
			AccessKey:       c.S3Config.AccessKey,
			SecretAccessKey: c.S3Config.SecretAccessKey,
			Provider:        c.S3Config.Provider,
			Endpoint:        c.S3Config.Endpoint,
			ForcePathStyle:  c.S3Config.Force,
			RoleARN:         c.S3Config.RoleArn,
		}}
	} else if c.GCSConfig != nil {
		op = &storage.BackendOptions{GCS: storage.GCSBackendOptions{
			CredentialsFile: c.GCSConfig.Credential,
		}}
	}

	root, _ := SplitPathBase(c.Common.PathBase)
	s, err := storage.ParseBackend(root, op)
	if err != nil {
		return nil, errors.Trace(err)
	}

	store, err := storage.NewWithDefaultOpt(ctx, s)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open storage %s", root)
	}
	return store, nil
}
