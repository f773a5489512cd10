package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poem-search-api/internal/config"
)

// New builds the logger for one process of the poem search API. service names
// the process ("public", "admin", "mcp" or "poemctl") and is attached to every
// entry.
//
// APP_ENV prod/production logs JSON without sampling, so every http_request
// line is kept. local, dev, docker or unset log to the console. LOG_LEVEL,
// when set, overrides the environment's default level.
func New(cfg *config.Config, service string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch cfg.AppEnv {
	case "prod", "production":
		zcfg = zap.NewProductionConfig()
		zcfg.Sampling = nil
	case "local", "dev", "docker", "":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown APP_ENV %q for logger", cfg.AppEnv)
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := zcfg.Build(
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", service), zap.String("env", cfg.AppEnv)),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
