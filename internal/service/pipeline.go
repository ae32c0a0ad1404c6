package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/internal/service/publishtime"
	"github.com/ifuryst/reelcast/internal/service/queue"
	"github.com/ifuryst/reelcast/internal/service/quota"
	"github.com/ifuryst/reelcast/internal/service/upload"
	"github.com/ifuryst/reelcast/pkg/fsutil"
	"github.com/ifuryst/reelcast/pkg/retry"
)

const callVideosInsert = "videos.insert"

// ErrRunInProgress is returned when another run holds the queue lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Uploader sends one file to the platform.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*models.UploadResult, error)
}

// PipelineDeps are the collaborators of a pipeline run.
type PipelineDeps struct {
	Platform   publisher.Platform
	Uploader   Uploader
	Store      *queue.Store
	Discoverer *queue.Discoverer
	Ledger     *quota.Ledger
	Scheduler  *publishtime.Scheduler
	History    *HistoryService
}

// ItemOutcome is the result for one queue item in a run.
type ItemOutcome struct {
	Title       string              `json:"title"`
	AssetPath   string              `json:"mosaic_filepath"`
	Status      models.UploadStatus `json:"status"`
	VideoID     string              `json:"video_id,omitempty"`
	PublishURL  string              `json:"publish_url,omitempty"`
	ScheduledAt *time.Time          `json:"scheduled_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Dropped     bool                `json:"dropped,omitempty"`
}

// RunReport summarises one pipeline run.
type RunReport struct {
	RunID         string                `json:"run_id"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	Prepared      int                   `json:"prepared"`
	Pending       int                   `json:"pending"`
	LastScheduled *models.ScheduledItem `json:"last_scheduled,omitempty"`
	NextSlot      *time.Time            `json:"next_slot,omitempty"`
	FollowingSlot *time.Time            `json:"following_slot,omitempty"`
	QuotaExceeded bool                  `json:"quota_exceeded"`
	Items         []ItemOutcome         `json:"items"`
}

// PipelineService runs prepare, schedule and upload over the work queue.
type PipelineService struct {
	cfg    *config.Config
	deps   PipelineDeps
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewPipelineService(cfg *config.Config, deps PipelineDeps, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for run timestamps.
func (s *PipelineService) WithClock(now func() time.Time) *PipelineService {
	s.now = now
	return s
}

// Run processes up to queue.max_uploads_per_run pending items. Quota
// exhaustion stops the run and is returned; per-item failures are reported
// in the RunReport and the run moves on. Items rejected as invalid or
// permanently failed are dropped from the queue.
func (s *PipelineService) Run(ctx context.Context) (*RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID))

	lock, err := fsutil.AcquireRunLock(filepath.Dir(s.cfg.Queue.Path), runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunInProgress, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	report := &RunReport{RunID: runID, StartedAt: s.now(), Items: []ItemOutcome{}}
	defer func() {
		report.FinishedAt = s.now()
	}()

	logger.Info("Pipeline run started")

	if s.cfg.Queue.Prepare && s.deps.Discoverer != nil {
		prep, err := s.prepare(logger)
		if err != nil {
			logger.Error("Queue preparation failed", zap.Error(err))
			s.recordError(runID, "queue", "Queue preparation failed", err)
		} else {
			report.Prepared = len(prep.Added)
		}
	}

	items := s.deps.Store.LoadAll()
	pending := queue.SelectPending(items, 0)
	report.Pending = len(pending)

	scheduled, err := s.deps.Platform.ListScheduled(ctx)
	if err != nil {
		if isQuotaError(err) {
			report.QuotaExceeded = true
			return report, fmt.Errorf("%w: %v", models.ErrQuotaExceeded, err)
		}
		return report, fmt.Errorf("failed to list scheduled videos: %w", err)
	}
	report.LastScheduled = models.LatestScheduled(scheduled)
	nextSlot, err := s.deps.Scheduler.NextPublishTime(scheduled)
	if err != nil {
		return report, err
	}
	following := s.deps.Scheduler.Following(nextSlot)
	report.NextSlot, report.FollowingSlot = &nextSlot, &following

	if len(pending) == 0 {
		logger.Info("No pending items in the upload queue", zap.String("queue", s.deps.Store.Path()))
		return report, nil
	}

	var toUpload []*models.QueueItem
	items, toUpload = s.reconcile(logger, items, pending, scheduled, report)
	if len(toUpload) == 0 {
		return report, nil
	}

	if err := s.deps.Platform.CheckQuota(ctx); err != nil {
		report.QuotaExceeded = isQuotaError(err)
		logger.Error("Quota check failed", zap.Error(err))
		return report, err
	}

	// Items dropped as unusable do not count against the per-run limit.
	limit := s.cfg.Queue.MaxUploadsPerRun
	attempted := 0
	for _, item := range toUpload {
		if limit > 0 && attempted >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		cost := s.deps.Ledger.EstimateBatchCost(map[string]int{callVideosInsert: 1})
		if _, remaining, err := s.deps.Ledger.Usage(); err != nil {
			logger.Warn("Failed to read quota usage, skipping budget check", zap.Error(err))
		} else if cost > remaining {
			report.QuotaExceeded = true
			err := fmt.Errorf("%w: upload needs %d units but only %d remain today", models.ErrQuotaExceeded, cost, remaining)
			logger.Error("Daily quota budget exhausted", zap.Int("cost", cost), zap.Int("remaining", remaining))
			return report, err
		}

		slot, err := s.deps.Scheduler.NextPublishTime(scheduled)
		if err != nil {
			return report, err
		}
		following := s.deps.Scheduler.Following(slot)
		report.NextSlot, report.FollowingSlot = &slot, &following

		outcome, result, err := s.uploadItem(ctx, logger, runID, item, slot)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrQuotaExceeded):
				report.Items = append(report.Items, outcome)
				report.QuotaExceeded = true
				return report, err
			case isUnusable(err):
				items = s.dropItem(logger, runID, item, items, &outcome)
			default:
				attempted++
			}
			report.Items = append(report.Items, outcome)
			continue
		}
		attempted++

		// The video exists on the channel from here on, whatever happens to the queue row.
		scheduled = append(scheduled, models.ScheduledItem{
			VideoID:              result.VideoID,
			Title:                item.Title,
			ScheduledPublishTime: slot,
		})
		report.LastScheduled = models.LatestScheduled(scheduled)

		item.PublishDate = slot.Format(time.RFC3339)
		item.PublishURL = result.PublishURL
		items, err = s.deps.Store.Upsert(item, items)
		if err != nil {
			logger.Error("Failed to update upload queue after a successful upload",
				zap.String("mosaic_filepath", item.SourceAssetPath),
				zap.String("url", result.PublishURL),
				zap.Error(err))
			s.recordError(runID, "queue", "Queue update failed", err, WithAsset(item.SourceAssetPath))
			outcome.Error = fmt.Sprintf("uploaded but the queue was not updated: %v", err)
			report.Items = append(report.Items, outcome)
			continue
		}
		report.Items = append(report.Items, outcome)

		s.moveAsset(logger, item.SourceAssetPath)
	}

	logger.Info("Pipeline run finished", zap.Int("processed", len(report.Items)))
	return report, nil
}

// PrepareQueue discovers new finished assets and appends them to the queue.
func (s *PipelineService) PrepareQueue() (*queue.DiscoveryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps.Discoverer == nil {
		return &queue.DiscoveryReport{}, nil
	}
	return s.prepare(s.logger)
}

func (s *PipelineService) prepare(logger *zap.Logger) (*queue.DiscoveryReport, error) {
	existing := s.deps.Store.LoadAll()
	merged, report, err := s.deps.Discoverer.Discover(existing)
	if err != nil {
		return nil, err
	}
	if len(report.Added) == 0 {
		return report, nil
	}

	if _, err := s.deps.Store.Snapshot(s.cfg.Queue.ArchivedCSVDir, s.now()); err != nil {
		logger.Warn("Failed to archive upload queue before rewrite", zap.Error(err))
	}
	if err := s.deps.Store.Save(merged); err != nil {
		return nil, err
	}
	logger.Info("Upload queue prepared", zap.Int("added", len(report.Added)), zap.Int("total", len(merged)))
	return report, nil
}

// reconcile marks queue items already present on the channel as published so
// an interrupted run does not upload them twice.
func (s *PipelineService) reconcile(logger *zap.Logger, items, pending []*models.QueueItem, scheduled []models.ScheduledItem, report *RunReport) ([]*models.QueueItem, []*models.QueueItem) {
	// A scheduled video already linked from a queue row belongs to that row,
	// so a later story with the same title is not mistaken for it.
	claimed := make(map[string]bool, len(items))
	for _, item := range items {
		if item.IsPublished() {
			claimed[item.PublishURL] = true
		}
	}
	byTitle := make(map[string][]models.ScheduledItem, len(scheduled))
	for _, sched := range scheduled {
		if sched.Title != "" && sched.VideoID != "" && !claimed[models.WatchURL(sched.VideoID)] {
			byTitle[sched.Title] = append(byTitle[sched.Title], sched)
		}
	}

	var toUpload []*models.QueueItem
	for _, item := range pending {
		candidates := byTitle[item.Title]
		if len(candidates) == 0 || item.Title == "" {
			toUpload = append(toUpload, item)
			continue
		}
		sched := candidates[0]
		byTitle[item.Title] = candidates[1:]

		item.PublishDate = sched.ScheduledPublishTime.Format(time.RFC3339)
		item.PublishURL = models.WatchURL(sched.VideoID)
		updated, err := s.deps.Store.Upsert(item, items)
		if err != nil {
			logger.Error("Failed to mark already scheduled item as published", zap.String("title", item.Title), zap.Error(err))
			continue
		}
		items = updated

		logger.Warn("Queue item is already scheduled on the channel, skipping upload",
			zap.String("title", item.Title),
			zap.String("video_id", sched.VideoID))
		scheduledAt := sched.ScheduledPublishTime
		report.Items = append(report.Items, ItemOutcome{
			Title:       item.Title,
			AssetPath:   item.SourceAssetPath,
			Status:      models.UploadSkipped,
			VideoID:     sched.VideoID,
			PublishURL:  item.PublishURL,
			ScheduledAt: &scheduledAt,
		})
	}
	return items, toUpload
}

func (s *PipelineService) uploadItem(ctx context.Context, logger *zap.Logger, runID string, item *models.QueueItem, slot time.Time) (ItemOutcome, *models.UploadResult, error) {
	logger.Info("Uploading queue item",
		zap.String("title", item.Title),
		zap.String("video", item.LocalMediaPath),
		zap.Time("publish_at", slot))

	result, err := s.deps.Uploader.Upload(ctx, upload.Request{
		FilePath:      item.LocalMediaPath,
		Title:         item.Title,
		Description:   item.Description,
		Keywords:      item.Keywords,
		CategoryID:    s.cfg.Upload.CategoryID,
		PrivacyStatus: s.cfg.Upload.PrivacyStatus,
		PublishAt:     &slot,
	})

	status := upload.StatusOf(err)
	outcome := ItemOutcome{
		Title:       item.Title,
		AssetPath:   item.SourceAssetPath,
		Status:      status,
		ScheduledAt: &slot,
	}

	job := &models.UploadJob{
		RunID:       runID,
		AssetPath:   item.SourceAssetPath,
		MediaPath:   item.LocalMediaPath,
		Title:       item.Title,
		Status:      status,
		ScheduledAt: &slot,
	}
	var uerr *upload.Error
	if errors.As(err, &uerr) {
		job.Attempts = uerr.Attempts
	}

	if err != nil {
		outcome.Error = err.Error()
		job.Error = err.Error()
		logger.Error("Upload failed",
			zap.String("title", item.Title),
			zap.String("status", string(status)),
			zap.Error(err))
	} else {
		outcome.VideoID, outcome.PublishURL = result.VideoID, result.PublishURL
		job.VideoID, job.PublishURL = result.VideoID, result.PublishURL
		publishedAt := result.PublishedAt
		job.PublishedAt = &publishedAt
		if job.Attempts == 0 {
			job.Attempts = 1
		}
	}

	if herr := s.deps.History.RecordUpload(job); herr != nil {
		logger.Warn("Failed to record upload history", zap.Error(herr))
	}
	if err != nil {
		opts := []ErrorLogOption{WithAsset(item.SourceAssetPath)}
		if job.ID != 0 {
			opts = append(opts, WithJob(job.ID))
		}
		s.recordError(runID, "upload", "Upload failed", err, opts...)
	}
	return outcome, result, err
}

// dropItem takes an item that can never upload out of the queue. Its mosaic
// goes to the unmatched directory so preparation does not enqueue it again.
// When the mosaic cannot be moved the row stays and is skipped this run only.
func (s *PipelineService) dropItem(logger *zap.Logger, runID string, item *models.QueueItem, items []*models.QueueItem, outcome *ItemOutcome) []*models.QueueItem {
	logger = logger.With(zap.String("mosaic_filepath", item.SourceAssetPath))
	if fsutil.RegularFileExists(item.SourceAssetPath) {
		if s.cfg.Queue.UnmatchedDir == "" {
			logger.Warn("No unmatched directory configured, unusable item stays queued")
			return items
		}
		dst, err := fsutil.MoveToDir(item.SourceAssetPath, s.cfg.Queue.UnmatchedDir)
		if err != nil {
			logger.Error("Failed to move unusable asset aside", zap.Error(err))
			return items
		}
		outcome.AssetPath = dst
	}

	updated, err := s.deps.Store.Remove(item.SourceAssetPath, items)
	if err != nil {
		logger.Error("Failed to drop unusable item from the upload queue", zap.Error(err))
		s.recordError(runID, "queue", "Queue update failed", err, WithAsset(item.SourceAssetPath))
		return items
	}
	outcome.Dropped = true
	logger.Warn("Dropped unusable item from the upload queue",
		zap.String("title", item.Title),
		zap.String("moved_to", outcome.AssetPath))
	return updated
}

func (s *PipelineService) moveAsset(logger *zap.Logger, path string) {
	if s.cfg.Queue.CompletedDir == "" || !fsutil.RegularFileExists(path) {
		return
	}
	if dst, err := fsutil.MoveToDir(path, s.cfg.Queue.CompletedDir); err != nil {
		logger.Error("Failed to move completed asset", zap.String("path", path), zap.Error(err))
	} else {
		logger.Info("Moved completed asset", zap.String("to", dst))
	}
}

func (s *PipelineService) recordError(runID, source, title string, err error, opts ...ErrorLogOption) {
	if !s.deps.History.Enabled() {
		return
	}
	opts = append([]ErrorLogOption{WithRunID(runID)}, opts...)
	if herr := s.deps.History.RecordError("ERROR", source, title, err.Error(), opts...); herr != nil {
		s.logger.Warn("Failed to record error log", zap.Error(herr))
	}
}

// isUnusable reports whether the item can never upload as queued. Running out
// of retries on transient errors is left for the next run.
func isUnusable(err error) bool {
	if errors.Is(err, retry.ErrExhausted) {
		return false
	}
	return errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrPermanentFailure)
}

func isQuotaError(err error) bool {
	return errors.Is(err, models.ErrQuotaExceeded) || publisher.StatusCode(err) == 403
}
