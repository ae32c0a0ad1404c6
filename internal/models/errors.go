package models

import "errors"

// Error taxonomy shared by every component. Callers branch with errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRetriableFailure = errors.New("retriable failure")
	ErrPermanentFailure = errors.New("permanent failure")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrQueueRead        = errors.New("queue read error")
	ErrQueueWrite       = errors.New("queue write error")
)

// IsFatalForRun reports whether err must stop the whole pipeline run.
func IsFatalForRun(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrQuotaExceeded)
}
