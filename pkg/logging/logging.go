// Package logging builds the process logger from configuration. The logger is
// created once and handed to constructors; nothing here is global.
package logging

import (
	"github.com/juju/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"seqindex/pkg/config"
)

const timeLayout = "2006-01-02 15:04:05.999999"

func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Annotatef(err, "log level %q", cfg.Level)
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return logger, nil
}
