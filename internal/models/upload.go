package models

import (
	"fmt"
	"time"
)

// UploadStatus is the terminal classification of one upload call.
type UploadStatus string

const (
	UploadSucceeded         UploadStatus = "succeeded"
	UploadRetriablyFailed   UploadStatus = "retriably_failed"
	UploadPermanentlyFailed UploadStatus = "permanently_failed"
	UploadQuotaExceeded     UploadStatus = "quota_exceeded"
	UploadInvalidInput      UploadStatus = "invalid_input"
	UploadSkipped           UploadStatus = "skipped"
)

// Privacy statuses accepted by the platform.
const (
	PrivacyPublic   = "public"
	PrivacyPrivate  = "private"
	PrivacyUnlisted = "unlisted"
)

// ValidPrivacyStatus reports whether s is one of public, private or unlisted.
func ValidPrivacyStatus(s string) bool {
	switch s {
	case PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
		return true
	}
	return false
}

// VideoMetadata is the snippet/status payload sent with an upload.
type VideoMetadata struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags"`
	CategoryID    string     `json:"category_id"`
	PrivacyStatus string     `json:"privacy_status"`
	PublishAt     *time.Time `json:"publish_at,omitempty"`
}

// RemoteVideo is the platform's response to a finished upload.
type RemoteVideo struct {
	ID           string    `json:"id"`
	UploadStatus string    `json:"upload_status"`
	PublishedAt  time.Time `json:"published_at"`
	PublishAt    time.Time `json:"publish_at"`
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	VideoID     string    `json:"video_id"`
	PublishURL  string    `json:"publish_url"`
	PublishedAt time.Time `json:"published_at"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// WatchURL builds the public watch URL for a video id.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
