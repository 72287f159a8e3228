// Package config loads the wheelport configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a wheelport run.
type Config struct {
	// Provider selects the store backend: "aws", "gcs", "azure",
	// "minio", "local" or "memory".
	Provider string `yaml:"provider"`

	// Container is the bucket or container the packages are
	// published into.
	Container string `yaml:"container"`

	Upload  UploadConfig  `yaml:"upload"`
	AWS     AWSConfig     `yaml:"aws"`
	GCS     GCSConfig     `yaml:"gcs"`
	Azure   AzureConfig   `yaml:"azure"`
	Minio   MinioConfig   `yaml:"minio"`
	Local   LocalConfig   `yaml:"local"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// UploadConfig tunes the publish pipeline.
type UploadConfig struct {
	// Workers bounds the number of concurrent file uploads.
	Workers int `yaml:"workers"`

	// UpdateIndex regenerates index.html after the files are up.
	UpdateIndex bool `yaml:"update_index"`

	// PruneDev deletes remote development builds superseded by an
	// uploaded file.
	PruneDev bool `yaml:"prune_dev"`

	// MaxRetries is the number of times a failed publish attempt is
	// retried before giving up. Credential failures are never retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelaySeconds is the fixed pause between attempts.
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

// AWSConfig configures the S3 store.
type AWSConfig struct {
	Region string `yaml:"region"`
	// EndpointURL overrides the S3 endpoint for S3-compatible services.
	EndpointURL string `yaml:"endpoint_url"`
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible endpoints.
	UsePathStyle bool `yaml:"use_path_style"`
	// AccessKeyID and SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GCSConfig configures the Google Cloud Storage store.
type GCSConfig struct {
	// Project is the project new buckets are created in.
	Project string `yaml:"project"`
	// CredentialsFile points at a service account key file. When empty
	// the default application credentials are used.
	CredentialsFile string `yaml:"credentials_file"`
}

// AzureConfig configures the Azure Blob Storage store.
type AzureConfig struct {
	// Account is the storage account name, used to build the account
	// URL as https://{account}.blob.core.windows.net.
	Account string `yaml:"account"`
	// AccountURL is the full account URL. Takes precedence over Account.
	AccountURL string `yaml:"account_url"`
	// ConnectionString authenticates with a shared key when set.
	ConnectionString string `yaml:"connection_string"`
	// UseManagedIdentity selects managed identity credentials instead
	// of the default credential chain.
	UseManagedIdentity bool `yaml:"use_managed_identity"`
}

// MinioConfig configures the MinIO store.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// LocalConfig configures the filesystem store.
type LocalConfig struct {
	// RootDir is the base directory containers live under.
	RootDir string `yaml:"root_dir"`
}

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// SnapshotPath, when set, persists the store to a SQLite file so
	// rehearsal runs survive restarts.
	SnapshotPath            string `yaml:"snapshot_path"`
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Provider:  "local",
		Container: "wheelhouse",
		Upload: UploadConfig{
			Workers:           4,
			UpdateIndex:       true,
			PruneDev:          true,
			MaxRetries:        3,
			RetryDelaySeconds: 1,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Local: LocalConfig{
			RootDir: "./data/containers",
		},
		Memory: MemoryConfig{
			SnapshotIntervalSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9090",
		},
	}
}

// Load reads a YAML configuration file from the given path. Fields the
// file does not set keep their defaults. A missing file is reported via
// the returned error so the caller can decide whether to fall back to
// Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero values that must never be zero after
// YAML unmarshaling.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.Container == "" {
		c.Container = def.Container
	}
	if c.Upload.Workers <= 0 {
		c.Upload.Workers = def.Upload.Workers
	}
	if c.Upload.MaxRetries < 0 {
		c.Upload.MaxRetries = 0
	}
	if c.Upload.RetryDelaySeconds < 0 {
		c.Upload.RetryDelaySeconds = def.Upload.RetryDelaySeconds
	}
	if c.AWS.Region == "" {
		c.AWS.Region = def.AWS.Region
	}
	if c.Local.RootDir == "" {
		c.Local.RootDir = def.Local.RootDir
	}
	if c.Memory.SnapshotIntervalSeconds <= 0 {
		c.Memory.SnapshotIntervalSeconds = def.Memory.SnapshotIntervalSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = def.Metrics.Listen
	}
}
