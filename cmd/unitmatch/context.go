package main

import (
	"fmt"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/store"
	"go.uber.org/zap"
)

type commandContext struct {
	dbPath   string
	logLevel string
	logJSON  bool

	logger *zap.Logger
}

func (c *commandContext) setupLogging() error {
	logger, err := monitoring.NewZapLogger(c.logLevel, c.logJSON)
	if err != nil {
		return err
	}
	c.logger = logger
	monitoring.UseZap(logger)
	return nil
}

func (c *commandContext) syncLogs() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// withDB opens the database with its schema brought up to date, runs fn and
// closes it.
func (c *commandContext) withDB(fn func(db *store.DB) error) error {
	db, err := store.OpenAndMigrate(c.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
