package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wheelport/wheelport/internal/config"
)

// NewOpener builds the session opener for the configured provider.
//
// The hosted providers (aws, gcs, azure, minio) open a fresh session
// per call because their clients are not guaranteed safe for
// concurrent use across upload tasks. The local and memory stores are
// safe to share, so a single instance backs every session.
func NewOpener(cfg *config.Config) (Opener, error) {
	switch cfg.Provider {
	case "aws":
		aws := cfg.AWS
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return NewS3Store(ctx, aws.Region, aws.EndpointURL, aws.UsePathStyle, aws.AccessKeyID, aws.SecretAccessKey)
		}), nil

	case "gcs":
		gcs := cfg.GCS
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return NewGCSStore(ctx, gcs.Project, gcs.CredentialsFile)
		}), nil

	case "azure":
		az := cfg.Azure
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return NewAzureStore(ctx, az.Account, az.AccountURL, az.ConnectionString, az.UseManagedIdentity)
		}), nil

	case "minio":
		mc := cfg.Minio
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return NewMinioStore(ctx, mc.Endpoint, mc.AccessKey, mc.SecretKey, mc.UseSSL, mc.Region)
		}), nil

	case "local":
		d, err := NewDirStore(cfg.Local.RootDir)
		if err != nil {
			return nil, err
		}
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return d, nil
		}), nil

	case "memory":
		var m *MemStore
		if cfg.Memory.SnapshotPath != "" {
			interval := time.Duration(cfg.Memory.SnapshotIntervalSeconds) * time.Second
			var err error
			m, err = NewMemStoreWithSnapshot(cfg.Memory.SnapshotPath, interval)
			if err != nil {
				return nil, err
			}
		} else {
			m = NewMemStore()
		}
		return OpenerFunc(func(ctx context.Context) (Store, error) {
			return m, nil
		}), nil
	}

	return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
}
