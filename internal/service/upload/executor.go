// Package upload sends one media file to the platform with bounded retries
// and records every attempt in the quota ledger.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/pkg/fsutil"
	"github.com/ifuryst/reelcast/pkg/retry"
	"github.com/ifuryst/reelcast/pkg/util"
)

const (
	callVideosInsert = "videos.insert"
	uploadedStatus   = "uploaded"
)

// QuotaRecorder is the part of the quota ledger the executor writes to.
type QuotaRecorder interface {
	LookupCost(kind string) int
	RecordAttempt(kind string, units int, outcome models.QuotaOutcome, note string) error
}

// Request describes one upload.
type Request struct {
	FilePath      string     `json:"file"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Keywords      string     `json:"keywords"`
	CategoryID    string     `json:"category"`
	PrivacyStatus string     `json:"privacy_status"`
	PublishAt     *time.Time `json:"publish_at,omitempty"`
}

type Executor struct {
	inserter     publisher.Inserter
	quota        QuotaRecorder
	policy       retry.Policy
	categoryID   string
	privacy      string
	completedDir string
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Executor)

// WithPolicy overrides the retry policy built from the upload config.
func WithPolicy(p retry.Policy) Option {
	return func(e *Executor) {
		e.policy = p
	}
}

// WithClock replaces the clock used when the platform omits publishedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(cfg config.UploadConfig, inserter publisher.Inserter, quota QuotaRecorder, logger *zap.Logger, opts ...Option) (*Executor, error) {
	delay, err := cfg.Delay()
	if err != nil {
		return nil, err
	}

	e := &Executor{
		inserter:     inserter,
		quota:        quota,
		policy:       retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: delay},
		categoryID:   cfg.CategoryID,
		privacy:      cfg.PrivacyStatus,
		completedDir: cfg.CompletedDir,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Upload sends req.FilePath and returns the platform video id and watch URL.
// Failures are returned as *Error.
func (e *Executor) Upload(ctx context.Context, req Request) (*models.UploadResult, error) {
	meta, err := e.metadata(req)
	if err != nil {
		return nil, &Error{Status: models.UploadInvalidInput, Cause: err}
	}
	if err := checkReadable(req.FilePath); err != nil {
		return nil, &Error{Status: models.UploadInvalidInput, Cause: err}
	}

	cost := e.quota.LookupCost(callVideosInsert)
	logger := e.logger.With(zap.String("file", req.FilePath), zap.String("title", req.Title))
	if meta.PublishAt != nil {
		logger = logger.With(zap.Time("publish_at", *meta.PublishAt))
	}

	state := &AttemptState{}
	attempts := 0
	var remote *models.RemoteVideo

	err = e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		logger.Info("Uploading video", zap.Int("attempt", attempt))

		f, err := os.Open(req.FilePath)
		if err != nil {
			return &Error{Status: models.UploadInvalidInput, Cause: err}
		}
		defer f.Close()

		r, err := e.inserter.Insert(ctx, meta, f)
		if err != nil {
			state.LastError = err
			return e.classify(ctx, err, cost)
		}

		if r.UploadStatus != uploadedStatus {
			note := fmt.Sprintf("The upload failed with an unexpected response: %s", r.UploadStatus)
			e.record(cost, models.QuotaFailed, note)
			return &Error{Status: models.UploadPermanentlyFailed, Cause: fmt.Errorf("%w: %s", models.ErrPermanentFailure, note)}
		}

		e.record(cost, models.QuotaSuccess, fmt.Sprintf("Video id '%s' was successfully uploaded.", r.ID))
		remote = r
		return nil
	}, func(retryCount int, delay time.Duration, err error) {
		state.RetryCount = retryCount
		state.NextSleep = delay
		logger.Warn("Retriable upload error, backing off",
			zap.Int("retry", retryCount),
			zap.Duration("sleep", delay),
			zap.Error(err))
	})

	if err != nil {
		return nil, e.finish(err, attempts, logger)
	}

	result := &models.UploadResult{
		VideoID:     remote.ID,
		PublishURL:  models.WatchURL(remote.ID),
		PublishedAt: remote.PublishedAt,
	}
	if result.PublishedAt.IsZero() {
		result.PublishedAt = e.now()
	}
	if meta.PublishAt != nil {
		result.ScheduledAt = *meta.PublishAt
	}

	logger.Info("Video uploaded",
		zap.String("video_id", result.VideoID),
		zap.String("url", result.PublishURL),
		zap.Int("attempts", attempts))

	if e.completedDir != "" {
		if dst, err := fsutil.MoveToDir(req.FilePath, e.completedDir); err != nil {
			logger.Error("Failed to move uploaded file", zap.String("dir", e.completedDir), zap.Error(err))
		} else {
			logger.Info("Moved uploaded file", zap.String("to", dst))
		}
	}
	return result, nil
}

func (e *Executor) metadata(req Request) (models.VideoMetadata, error) {
	if req.Title == "" {
		return models.VideoMetadata{}, errors.New("title is required")
	}

	privacy := req.PrivacyStatus
	if privacy == "" {
		privacy = e.privacy
	}
	if !models.ValidPrivacyStatus(privacy) {
		return models.VideoMetadata{}, fmt.Errorf("invalid privacy status %q", privacy)
	}

	category := req.CategoryID
	if category == "" {
		category = e.categoryID
	}

	meta := models.VideoMetadata{
		Title:         req.Title,
		Description:   req.Description,
		Tags:          util.ParseTags(req.Keywords),
		CategoryID:    category,
		PrivacyStatus: privacy,
	}
	if req.PublishAt != nil {
		// Scheduled publishing requires a private video.
		publishAt := req.PublishAt.UTC()
		meta.PublishAt = &publishAt
		meta.PrivacyStatus = models.PrivacyPrivate
	}
	return meta, nil
}

// classify turns an Insert error into either a terminal *Error or a
// retriable marker for the retry loop.
func (e *Executor) classify(ctx context.Context, err error, cost int) error {
	if ctx.Err() != nil {
		return &Error{Status: models.UploadRetriablyFailed, Cause: err}
	}

	code := publisher.StatusCode(err)
	switch {
	case code == 403:
		e.record(cost, models.QuotaFailed, "Quota exceeded")
		return &Error{Status: models.UploadQuotaExceeded, Cause: err}
	case code == 0 || publisher.IsRetriableStatus(code):
		note := err.Error()
		if code == 0 {
			note = fmt.Sprintf("A retriable error occurred: %v", err)
		}
		e.record(cost, models.QuotaRetriable, note)
		return retry.Retriable(err)
	default:
		e.record(cost, models.QuotaFailed, err.Error())
		return &Error{Status: models.UploadPermanentlyFailed, Cause: err}
	}
}

func (e *Executor) finish(err error, attempts int, logger *zap.Logger) error {
	var uerr *Error
	switch {
	case errors.As(err, &uerr):
		uerr.Attempts = attempts
	case errors.Is(err, retry.ErrExhausted):
		// Every attempt already has its own entry, this one marks the outcome only.
		e.record(0, models.QuotaFailed, "Max retries exceeded")
		uerr = &Error{Status: models.UploadPermanentlyFailed, Attempts: attempts, Cause: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		uerr = &Error{Status: models.UploadRetriablyFailed, Attempts: attempts, Cause: err}
	default:
		uerr = &Error{Status: models.UploadPermanentlyFailed, Attempts: attempts, Cause: err}
	}

	logger.Error("Upload failed",
		zap.String("status", string(uerr.Status)),
		zap.Int("attempts", attempts),
		zap.Error(uerr.Cause))
	return uerr
}

func (e *Executor) record(units int, outcome models.QuotaOutcome, note string) {
	if err := e.quota.RecordAttempt(callVideosInsert, units, outcome, note); err != nil {
		e.logger.Warn("Failed to record quota usage", zap.Error(err))
	}
}

func checkReadable(path string) error {
	if path == "" {
		return errors.New("file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("please specify a valid file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("please specify a valid file: %s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file is not readable: %w", err)
	}
	return f.Close()
}
