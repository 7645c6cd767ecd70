// Package store resolves a storage configuration into a concrete blob
// store plus the key prefix checkpoints live under.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/driftflow/pkg/store/blob"
	badgerstore "github.com/marmos91/driftflow/pkg/store/blob/badger"
	localstore "github.com/marmos91/driftflow/pkg/store/blob/local"
	s3store "github.com/marmos91/driftflow/pkg/store/blob/s3"
)

// Backend names accepted in Config.Type.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendBadger = "badger"
)

// Config selects and configures a storage backend.
type Config struct {
	// Type is one of "local", "s3", "badger". Defaults to "local".
	Type string `mapstructure:"type" yaml:"type"`

	// S3 configures the S3 backend. Required when Type is "s3".
	S3 S3Config `mapstructure:"s3" yaml:"s3"`

	// Badger configures the badger backend. The database directory
	// defaults to the checkpoint directory when left empty.
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`

	// S3Metrics is an optional collector wired into the S3 backend. It is
	// set programmatically by the caller (metrics.NewS3Metrics), never
	// from configuration files; nil disables collection.
	S3Metrics s3store.Metrics `mapstructure:"-" yaml:"-"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewStorage resolves cfg into a blob store rooted for checkpointDir and
// the factory prefix to use inside it.
//
// For the local and badger backends the checkpoint directory is the
// storage root itself and the prefix is empty; for S3 the bucket is shared
// and the checkpoint directory becomes the key prefix.
func NewStorage(ctx context.Context, cfg Config, checkpointDir string) (blob.Storage, string, error) {
	switch cfg.Type {
	case "", BackendLocal:
		storage, err := localstore.New(localstore.Config{Dir: checkpointDir})
		if err != nil {
			return nil, "", err
		}
		return storage, "", nil

	case BackendS3:
		client, err := s3store.NewClientFromConfig(ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.ForcePathStyle,
		)
		if err != nil {
			return nil, "", err
		}
		storage, err := s3store.New(ctx, s3store.Config{
			Client:  client,
			Bucket:  cfg.S3.Bucket,
			Metrics: cfg.S3Metrics,
		})
		if err != nil {
			return nil, "", err
		}
		prefix := strings.Trim(checkpointDir, "/")
		return storage, prefix, nil

	case BackendBadger:
		path := cfg.Badger.Path
		if path == "" {
			path = checkpointDir
		}
		storage, err := badgerstore.New(badgerstore.Config{Path: path})
		if err != nil {
			return nil, "", err
		}
		return storage, "", nil

	default:
		return nil, "", fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
