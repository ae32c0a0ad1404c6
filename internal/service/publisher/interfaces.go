package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ifuryst/reelcast/internal/models"
)

// Inserter uploads one media stream with its metadata.
type Inserter interface {
	Insert(ctx context.Context, meta models.VideoMetadata, media io.Reader) (*models.RemoteVideo, error)
}

// Platform is everything the pipeline needs from the video platform.
type Platform interface {
	Inserter

	// ListScheduled returns the channel's private videos that carry a future
	// publish time, expressed in the reference timezone.
	ListScheduled(ctx context.Context) ([]models.ScheduledItem, error)

	// CheckQuota issues the cheapest authenticated call and reports
	// ErrQuotaExceeded when the platform refuses it for quota reasons.
	CheckQuota(ctx context.Context) error
}

// APIError is an HTTP-level error reported by the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP Error: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP Error: %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetriableStatus reports whether the status is a transient server error.
func IsRetriableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}
