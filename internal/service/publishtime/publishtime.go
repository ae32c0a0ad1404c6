// Package publishtime computes the next publish slot from the channel's
// already-scheduled videos and a daily posting frequency.
package publishtime

import (
	"fmt"
	"math"
	"time"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
)

// DefaultAnchorHour is the start-of-day slot used when nothing is scheduled.
const DefaultAnchorHour = 8

// Interval returns 24h divided by dailyFrequency.
func Interval(dailyFrequency float64) (time.Duration, error) {
	if dailyFrequency <= 0 || math.IsNaN(dailyFrequency) || math.IsInf(dailyFrequency, 0) {
		return 0, fmt.Errorf("%w: daily frequency must be positive, got %v", models.ErrConfiguration, dailyFrequency)
	}
	return time.Duration(24 / dailyFrequency * float64(time.Hour)), nil
}

// Next returns the publish time for a new item. With scheduled items it is the
// latest scheduled time plus one interval; otherwise it is today's anchor hour
// in loc plus one interval. The result is expressed in loc.
func Next(items []models.ScheduledItem, dailyFrequency float64, loc *time.Location, anchorHour int, now time.Time) (time.Time, error) {
	interval, err := Interval(dailyFrequency)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	var base time.Time
	if latest := models.LatestScheduled(items); latest != nil {
		base = latest.ScheduledPublishTime.In(loc)
	} else {
		local := now.In(loc)
		base = time.Date(local.Year(), local.Month(), local.Day(), anchorHour, 0, 0, 0, loc)
	}

	return base.Add(interval).In(loc), nil
}

// Scheduler binds Next to the configured frequency, reference timezone and clock.
type Scheduler struct {
	frequency  float64
	location   *time.Location
	anchorHour int
	now        func() time.Time
}

// NewScheduler validates the scheduling parameters up front.
func NewScheduler(cfg config.SchedulerConfig) (*Scheduler, error) {
	if _, err := Interval(cfg.DailyFrequency); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		frequency:  cfg.DailyFrequency,
		location:   loc,
		anchorHour: cfg.Hour(),
		now:        time.Now,
	}, nil
}

// WithClock replaces the clock used for the empty-schedule anchor.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Location returns the reference timezone.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Frequency returns the configured posts per day.
func (s *Scheduler) Frequency() float64 {
	return s.frequency
}

// NextPublishTime computes the slot for the next upload.
func (s *Scheduler) NextPublishTime(items []models.ScheduledItem) (time.Time, error) {
	return Next(items, s.frequency, s.location, s.anchorHour, s.now())
}

// Following returns the slot after t, used for the informational summary.
func (s *Scheduler) Following(t time.Time) time.Time {
	interval, _ := Interval(s.frequency)
	return t.Add(interval).In(s.location)
}
