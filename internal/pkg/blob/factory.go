package blob

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
)

// New 根据 storage.provider 创建存储
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case "", "local":
		store, err = NewLocalStore(cfg.Local.Dir)
	case "oss":
		store, err = NewOSSStore(cfg.OSS)
	case "gcs":
		store, err = NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, eris.Errorf("blob: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("blob store ready", zap.String("provider", store.Name()))
	return store, nil
}
