package core

import (
	"context"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"seqindex/pkg/config"
	"seqindex/pkg/logging"
	"seqindex/pkg/storage"
)

// Open loads the configuration at configPath (the default search path when
// empty), builds the process logger and a sharded index, and bulk loads the
// configured SQLite source if one is set. The caller owns the returned logger.
func Open(ctx context.Context, configPath string) (*ShardedIndex, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	idx, err := OpenConfig(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, errors.Trace(err)
	}
	return idx, logger, nil
}

// OpenConfig builds a sharded index from cfg and fills it from cfg.Source
// when Source.Path is set.
func OpenConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ShardedIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx, err := NewShardedFromConfig(cfg, logger)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Source.Path == "" {
		return idx, nil
	}

	src, err := storage.OpenSQLite(cfg.Source.Path, cfg.Source.Table)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer src.Close()
	if _, err := idx.Load(ctx, src); err != nil {
		return nil, errors.Annotatef(err, "load %s:%s", cfg.Source.Path, cfg.Source.Table)
	}
	return idx, nil
}
