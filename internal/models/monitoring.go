package models

import (
	"time"
)

// DailyStats aggregates upload outcomes and quota consumption per reference-zone day
type DailyStats struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Date              time.Time  `gorm:"uniqueIndex;not null" json:"date"`
	SuccessfulUploads int        `gorm:"default:0" json:"successful_uploads"`
	FailedUploads     int        `gorm:"default:0" json:"failed_uploads"`
	QuotaExceeded     int        `gorm:"default:0" json:"quota_exceeded"`
	PendingItems      int        `gorm:"default:0" json:"pending_items"`
	QuotaUnitsUsed    int        `gorm:"default:0" json:"quota_units_used"`
	LastPublishAt     *time.Time `json:"last_publish_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog stores diagnostics surfaced by pipeline runs
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source     string     `gorm:"size:100;not null;index" json:"source"` // pipeline, upload, queue, quota
	RunID      string     `gorm:"size:64;index" json:"run_id"`
	AssetPath  string     `gorm:"size:1024" json:"asset_path"`
	JobID      *uint      `gorm:"index" json:"job_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:text" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Job *UploadJob `gorm:"foreignKey:JobID" json:"job,omitempty"`
}

// MetricsSample is a single counter or gauge observation
type MetricsSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricName string    `gorm:"size:100;not null;index" json:"metric_name"`
	MetricType string    `gorm:"size:50;not null" json:"metric_type"` // gauge, counter
	Value      float64   `gorm:"not null" json:"value"`
	Tags       string    `gorm:"type:text" json:"tags"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
