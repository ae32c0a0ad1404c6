package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
)

// PipelineRunner is satisfied by PipelineService.
type PipelineRunner interface {
	Run(ctx context.Context) (*RunReport, error)
}

// Scheduler triggers a pipeline run every run_interval while serving.
type Scheduler struct {
	config   *config.SchedulerConfig
	logger   *zap.Logger
	pipeline PipelineRunner
	ticker   *time.Ticker
	stopCh   chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, pipeline PipelineRunner) *Scheduler {
	return &Scheduler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.RunInterval)
	if err != nil {
		s.logger.Error("Invalid run interval", zap.String("interval", s.config.RunInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("run_interval", s.config.RunInterval))

	s.ticker = time.NewTicker(interval)

	// Run first pipeline immediately
	go func() {
		s.logger.Info("Running initial pipeline")
		s.runPipeline(ctx)
	}()

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.logger.Info("Running scheduled pipeline")
				s.runPipeline(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runPipeline(ctx context.Context) {
	start := time.Now()
	report, err := s.pipeline.Run(ctx)
	duration := time.Since(start)

	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("Skipping scheduled pipeline, another run holds the lock", zap.Error(err))
	case errors.Is(err, models.ErrQuotaExceeded):
		s.logger.Warn("Pipeline stopped on quota exhaustion",
			zap.Error(err),
			zap.Duration("duration", duration))
	case err != nil:
		s.logger.Error("Pipeline failed",
			zap.Error(err),
			zap.Duration("duration", duration))
	default:
		s.logger.Info("Pipeline completed successfully",
			zap.String("run_id", report.RunID),
			zap.Int("items", len(report.Items)),
			zap.Duration("duration", duration))
	}
}
