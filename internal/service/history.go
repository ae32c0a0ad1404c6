package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/reelcast/internal/models"
)

// HistoryService keeps upload outcomes, error logs and metric samples.
// A nil database disables it and every method becomes a no-op.
type HistoryService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewHistoryService(db *gorm.DB, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		db:     db,
		logger: logger,
	}
}

// Enabled reports whether history is persisted.
func (h *HistoryService) Enabled() bool {
	return h != nil && h.db != nil
}

// RecordUpload stores one upload outcome.
func (h *HistoryService) RecordUpload(job *models.UploadJob) error {
	if !h.Enabled() {
		return nil
	}
	return h.db.Create(job).Error
}

// RecordError stores a diagnostic entry
func (h *HistoryService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	if !h.Enabled() {
		return nil
	}

	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}
	for _, option := range options {
		option(errorLog)
	}

	return h.db.Create(errorLog).Error
}

type ErrorLogOption func(*models.ErrorLog)

func WithRunID(runID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.RunID = runID
	}
}

func WithAsset(path string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.AssetPath = path
	}
}

func WithJob(jobID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.JobID = &jobID
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordMetric stores one sample
func (h *HistoryService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	if !h.Enabled() {
		return nil
	}

	var tagsJSON string
	if tags != nil {
		if tagsBytes, err := json.Marshal(tags); err == nil {
			tagsJSON = string(tagsBytes)
		}
	}

	metric := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Tags:       tagsJSON,
		Timestamp:  time.Now(),
	}
	return h.db.Create(metric).Error
}

// UpdateDailyStats recomputes the aggregate row for the day starting at dayStart.
func (h *HistoryService) UpdateDailyStats(dayStart time.Time, pendingItems, quotaUnitsUsed int) error {
	if !h.Enabled() {
		return nil
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	count := func(status models.UploadStatus) int64 {
		var n int64
		h.db.Model(&models.UploadJob{}).
			Where("created_at >= ? AND created_at < ? AND status = ?", dayStart, dayEnd, status).
			Count(&n)
		return n
	}
	successful := count(models.UploadSucceeded)
	failed := count(models.UploadPermanentlyFailed) + count(models.UploadRetriablyFailed) + count(models.UploadInvalidInput)
	quotaExceeded := count(models.UploadQuotaExceeded)

	var lastJob models.UploadJob
	var lastPublishAt *time.Time
	if err := h.db.Where("status = ? AND scheduled_at IS NOT NULL", models.UploadSucceeded).
		Order("scheduled_at desc").First(&lastJob).Error; err == nil {
		lastPublishAt = lastJob.ScheduledAt
	}

	var stats models.DailyStats
	result := h.db.Where("date = ?", dayStart).First(&stats)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		stats = models.DailyStats{
			Date:              dayStart,
			SuccessfulUploads: int(successful),
			FailedUploads:     int(failed),
			QuotaExceeded:     int(quotaExceeded),
			PendingItems:      pendingItems,
			QuotaUnitsUsed:    quotaUnitsUsed,
			LastPublishAt:     lastPublishAt,
		}
		return h.db.Create(&stats).Error
	}
	if result.Error != nil {
		return result.Error
	}

	return h.db.Model(&stats).Updates(map[string]interface{}{
		"successful_uploads": successful,
		"failed_uploads":     failed,
		"quota_exceeded":     quotaExceeded,
		"pending_items":      pendingItems,
		"quota_units_used":   quotaUnitsUsed,
		"last_publish_at":    lastPublishAt,
	}).Error
}

// DailyStats returns the aggregate rows of the last days, newest first.
func (h *HistoryService) DailyStats(days int) ([]models.DailyStats, error) {
	if !h.Enabled() {
		return []models.DailyStats{}, nil
	}
	var stats []models.DailyStats
	startDate := time.Now().AddDate(0, 0, -days)
	err := h.db.Where("date >= ?", startDate).Order("date desc").Find(&stats).Error
	return stats, err
}

// RecentUploads returns the latest upload outcomes, newest first.
func (h *HistoryService) RecentUploads(limit int) ([]models.UploadJob, error) {
	if !h.Enabled() {
		return []models.UploadJob{}, nil
	}
	var jobs []models.UploadJob
	err := h.db.Order("created_at desc, id desc").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// RecentErrors returns the latest error logs with their jobs.
func (h *HistoryService) RecentErrors(limit int) ([]models.ErrorLog, error) {
	if !h.Enabled() {
		return []models.ErrorLog{}, nil
	}
	var logs []models.ErrorLog
	err := h.db.Preload("Job").
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CleanupOldData removes samples, aggregates and resolved errors older than daysToKeep.
func (h *HistoryService) CleanupOldData(daysToKeep int) error {
	if !h.Enabled() {
		return nil
	}
	cutoffDate := time.Now().AddDate(0, 0, -daysToKeep)

	if err := h.db.Where("timestamp < ?", cutoffDate).Delete(&models.MetricsSample{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup metrics samples: %w", err)
	}
	if err := h.db.Where("date < ?", cutoffDate).Delete(&models.DailyStats{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup daily stats: %w", err)
	}
	if err := h.db.Where("created_at < ? AND resolved = ?", cutoffDate, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup resolved errors: %w", err)
	}
	return nil
}
