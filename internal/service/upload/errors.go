package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/ifuryst/reelcast/internal/models"
)

// Error is returned by Upload for every outcome other than success.
type Error struct {
	Status   models.UploadStatus
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s after %d attempt(s): %v", e.Status, e.Attempts, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the taxonomy sentinel for the status.
func (e *Error) Is(target error) bool {
	switch e.Status {
	case models.UploadRetriablyFailed:
		return target == models.ErrRetriableFailure
	case models.UploadPermanentlyFailed:
		return target == models.ErrPermanentFailure
	case models.UploadQuotaExceeded:
		return target == models.ErrQuotaExceeded
	case models.UploadInvalidInput:
		return target == models.ErrInvalidInput
	}
	return false
}

// StatusOf classifies the error returned by Upload.
func StatusOf(err error) models.UploadStatus {
	if err == nil {
		return models.UploadSucceeded
	}
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Status
	}
	switch {
	case errors.Is(err, models.ErrQuotaExceeded):
		return models.UploadQuotaExceeded
	case errors.Is(err, models.ErrInvalidInput):
		return models.UploadInvalidInput
	case errors.Is(err, models.ErrRetriableFailure):
		return models.UploadRetriablyFailed
	}
	return models.UploadPermanentlyFailed
}

// AttemptState tracks one upload while it is in flight.
type AttemptState struct {
	RetryCount int
	LastError  error
	NextSleep  time.Duration
}
