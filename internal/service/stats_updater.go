package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/service/queue"
	"github.com/ifuryst/reelcast/internal/service/quota"
)

// StatsUpdater periodically refreshes today's aggregate row
type StatsUpdater struct {
	history *HistoryService
	store   *queue.Store
	ledger  *quota.Ledger
	logger  *zap.Logger
	ticker  *time.Ticker
	done    chan bool
}

func NewStatsUpdater(history *HistoryService, store *queue.Store, ledger *quota.Ledger, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		history: history,
		store:   store,
		ledger:  ledger,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		done:    make(chan bool),
	}
}

// Start begins the periodic stats update process
func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.UpdateNow()
			}
		}
	}()
}

func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

// UpdateNow recomputes today's stats and prunes history older than 90 days.
func (s *StatsUpdater) UpdateNow() {
	if !s.history.Enabled() {
		return
	}
	s.logger.Debug("Updating statistics")

	pending := len(queue.SelectPending(s.store.LoadAll(), 0))
	used, _, err := s.ledger.Usage()
	if err != nil {
		s.logger.Warn("Failed to read quota usage", zap.Error(err))
	}

	if err := s.history.UpdateDailyStats(s.ledger.DayStart(time.Now()), pending, used); err != nil {
		s.logger.Error("Failed to update daily stats", zap.Error(err))
	}
	if err := s.history.RecordMetric("queue_pending_items", "gauge", float64(pending), nil); err != nil {
		s.logger.Error("Failed to record metric", zap.Error(err))
	}
	if err := s.history.RecordMetric("quota_units_used", "gauge", float64(used), nil); err != nil {
		s.logger.Error("Failed to record metric", zap.Error(err))
	}

	if err := s.history.CleanupOldData(90); err != nil {
		s.logger.Error("Failed to cleanup old data", zap.Error(err))
	}

	s.logger.Debug("Statistics updated successfully")
}
