package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/internal/service/publisher/youtube"
	"github.com/ifuryst/reelcast/internal/service/publishtime"
	"github.com/ifuryst/reelcast/internal/service/queue"
	"github.com/ifuryst/reelcast/internal/service/quota"
	"github.com/ifuryst/reelcast/internal/service/upload"
)

// App holds the wired components shared by the CLI and the HTTP server.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	History    *HistoryService
	Store      *queue.Store
	Discoverer *queue.Discoverer
	Ledger     *quota.Ledger
	Scheduler  *publishtime.Scheduler

	// Set by Connect.
	Platform publisher.Platform
	Executor *upload.Executor
	Pipeline *PipelineService

	logger *zap.Logger
}

// NewApp builds the local components. Nothing here talks to the platform.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scheduler, err := publishtime.NewScheduler(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	loc := scheduler.Location()

	ledger, err := quota.NewLedger(cfg.Quota, loc, logger.Named("quota"))
	if err != nil {
		return nil, err
	}

	db, err := NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &App{
		Config:     cfg,
		DB:         db,
		History:    NewHistoryService(db, logger.Named("history")),
		Store:      queue.NewStore(cfg.Queue.Path, logger.Named("queue")),
		Discoverer: queue.NewDiscoverer(cfg.Queue, loc, logger.Named("discovery")),
		Ledger:     ledger,
		Scheduler:  scheduler,
		logger:     logger,
	}, nil
}

// Connect attaches the platform and builds the upload executor and pipeline.
// A nil platform means the YouTube channel from the configuration.
func (a *App) Connect(ctx context.Context, platform publisher.Platform) error {
	if platform == nil {
		svc, err := youtube.NewService(ctx, a.Config.YouTube, a.logger.Named("youtube"))
		if err != nil {
			return err
		}
		platform = youtube.NewPublisher(svc, a.Config.YouTube, a.Config.Upload, a.Scheduler.Location(), a.Ledger, a.logger.Named("youtube"))
	}

	executor, err := upload.NewExecutor(a.Config.Upload, platform, a.Ledger, a.logger.Named("upload"))
	if err != nil {
		return err
	}

	a.Platform = platform
	a.Executor = executor
	a.Pipeline = NewPipelineService(a.Config, PipelineDeps{
		Platform:   platform,
		Uploader:   executor,
		Store:      a.Store,
		Discoverer: a.Discoverer,
		Ledger:     a.Ledger,
		Scheduler:  a.Scheduler,
		History:    a.History,
	}, a.logger.Named("pipeline"))
	return nil
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
