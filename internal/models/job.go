package models

import (
	"time"

	"gorm.io/gorm"
)

// UploadJob records the outcome of one upload attempt for the history API.
type UploadJob struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	RunID       string         `gorm:"size:64;index" json:"run_id"`
	AssetPath   string         `gorm:"not null;size:1024;index" json:"asset_path"`
	MediaPath   string         `gorm:"size:1024" json:"media_path"`
	Title       string         `gorm:"size:500" json:"title"`
	Tags        StringArray    `gorm:"type:text" json:"tags"`
	Status      UploadStatus   `gorm:"size:50;index" json:"status"`
	VideoID     string         `gorm:"size:64" json:"video_id"`
	PublishURL  string         `gorm:"size:255" json:"publish_url"`
	Attempts    int            `gorm:"default:0" json:"attempts"`
	Error       string         `gorm:"type:text" json:"error"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	PublishedAt *time.Time     `json:"published_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
