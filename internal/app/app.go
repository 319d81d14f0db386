package app

import (
	"fmt"

	"go.uber.org/zap"

	"textingest/internal/config"
	"textingest/internal/logging"
	"textingest/internal/service"
	"textingest/internal/storage"
)

// App holds the process-wide wiring shared by every command.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	history *storage.DB
	ingest  *service.IngestService
}

// newApp loads configuration, builds the logger, opens run history
// (unless disabled) and creates the ingest service.
func newApp(envFiles []string) (*App, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	deps := service.Deps{
		Config:  cfg,
		Logger:  logger,
		Emitter: service.LogEmitter{Logger: logger},
	}
	if cfg.HistoryDB != "" {
		db, err := storage.New(cfg.HistoryDB)
		if err != nil {
			// History is auxiliary; a run still proceeds without it.
			logger.Warn("run history unavailable", zap.String("path", cfg.HistoryDB), zap.Error(err))
		} else {
			logger.Debug("run history opened", zap.String("path", db.Path()))
			a.history = db
			deps.Runs = storage.NewRunStore(db)
		}
	}
	a.ingest = service.NewIngestService(deps)
	return a, nil
}

// Close releases the history database and flushes the logger.
func (a *App) Close() {
	a.ingest.Stop()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("closing history database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
