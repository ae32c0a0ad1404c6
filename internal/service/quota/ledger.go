// Package quota estimates and records API quota consumption in an
// append-only CSV ledger.
package quota

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
)

// Ledger appends one entry per estimated, attempted or completed API call.
type Ledger struct {
	path     string
	costs    CostTable
	budget   int
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewLedger loads the cost table and prepares the ledger file location.
// loc defines where the quota day starts.
func NewLedger(cfg config.QuotaConfig, loc *time.Location, logger *zap.Logger) (*Ledger, error) {
	costs, err := LoadCostTable(cfg.CostsFile)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		path:     cfg.LogFile,
		costs:    costs,
		budget:   cfg.DailyBudget,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithClock replaces the clock used for entry timestamps and quota days.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// LookupCost returns the unit cost for kind, defaulting to 1.
func (l *Ledger) LookupCost(kind string) int {
	return l.costs.Lookup(kind)
}

// RecordAttempt appends one entry to the ledger file.
func (l *Ledger) RecordAttempt(kind string, units int, outcome models.QuotaOutcome, note string) error {
	entry := models.QuotaLedgerEntry{
		Timestamp:      l.now(),
		APICallKind:    kind,
		EstimatedUnits: units,
		Outcome:        outcome,
		Note:           note,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.append(entry); err != nil {
		l.logger.Error("Failed to record quota usage",
			zap.String("api", kind),
			zap.String("status", string(outcome)),
			zap.Error(err))
		return err
	}

	l.logger.Debug("Quota usage recorded",
		zap.String("api", kind),
		zap.Int("units", units),
		zap.String("status", string(outcome)),
		zap.String("note", note))
	return nil
}

func (l *Ledger) append(entry models.QuotaLedgerEntry) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create quota log directory %s", dir)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open quota log %s", l.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat quota log %s", l.path)
	}

	var buf bytes.Buffer
	rows := []models.QuotaLedgerEntry{entry}
	if info.Size() == 0 {
		err = gocsv.Marshal(&rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, &buf)
	}
	if err != nil {
		return errors.Wrap(err, "encode quota entry")
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "append quota log %s", l.path)
	}
	return nil
}

// EstimateBatchCost sums cost*count over calls and records one Estimated
// entry per kind.
func (l *Ledger) EstimateBatchCost(calls map[string]int) int {
	kinds := make([]string, 0, len(calls))
	for kind := range calls {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	total := 0
	for _, kind := range kinds {
		count := calls[kind]
		units := l.LookupCost(kind) * count
		total += units
		_ = l.RecordAttempt(kind, units, models.QuotaEstimated, "Cost estimation")
	}

	l.logger.Info("Estimated quota cost", zap.Int("units", total), zap.Any("calls", calls))
	return total
}

// Entries reads the whole ledger back. A missing ledger is empty.
func (l *Ledger) Entries() ([]models.QuotaLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return []models.QuotaLedgerEntry{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read quota log %s", l.path)
	}

	var entries []models.QuotaLedgerEntry
	if err := gocsv.UnmarshalBytes(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "decode quota log %s", l.path)
	}
	return entries, nil
}

// UsedSince sums realized units recorded at or after since.
func (l *Ledger) UsedSince(since time.Time) (int, error) {
	entries, err := l.Entries()
	if err != nil {
		return 0, err
	}
	used := 0
	for _, e := range entries {
		if e.Realized() && !e.Timestamp.Before(since) {
			used += e.EstimatedUnits
		}
	}
	return used, nil
}

// DayStart returns the beginning of the quota day containing t.
func (l *Ledger) DayStart(t time.Time) time.Time {
	local := t.In(l.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.location)
}

// Usage reports units used today and what is left of the daily budget.
func (l *Ledger) Usage() (used, remaining int, err error) {
	used, err = l.UsedSince(l.DayStart(l.now()))
	if err != nil {
		return 0, 0, err
	}
	remaining = l.budget - used
	if remaining < 0 {
		remaining = 0
	}
	return used, remaining, nil
}

// Budget returns the configured daily budget.
func (l *Ledger) Budget() int {
	return l.budget
}
