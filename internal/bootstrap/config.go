package bootstrap

import (
	"flag"
	"fmt"

	"github.com/commercetrack/attribution/internal/config"
	"github.com/commercetrack/attribution/internal/logger"
)

// LoadConfig loads configuration. Uses the -config flag with the standard
// config path fallback.
func LoadConfig() (*config.Config, error) {
	configPath := flag.String("config", config.GetConfigPath("config.yml"), "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", serviceName),
		logger.String("version", version),
	), nil
}
