package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sly67/treedesk/internal/config"
	"github.com/sly67/treedesk/internal/storage/local"
	s3backend "github.com/sly67/treedesk/internal/storage/s3"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
func NewBackendFromConfig(ctx context.Context, backendType string, raw json.RawMessage) (Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, raw)
	case "local":
		return local.NewFromJSON(raw)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// Open builds the backend selected by cfg and wraps it with metrics and
// logging.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var settings any
	switch cfg.StorageBackend {
	case "local":
		settings = local.Config{RootPath: cfg.Root}
	case "s3":
		settings = s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		}
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", cfg.StorageBackend, err)
	}
	b, err := NewBackendFromConfig(ctx, cfg.StorageBackend, raw)
	if err != nil {
		return nil, err
	}
	return Instrument(b), nil
}
