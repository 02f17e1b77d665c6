package bootstrap

import (
	"fmt"

	"github.com/commercetrack/attribution/internal/config"
	"github.com/commercetrack/attribution/internal/database"
	"github.com/commercetrack/attribution/internal/logger"
)

// SetupDatabase creates the durable tier connection.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*database.DB, error) {
	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return db, nil
}
