package quota

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
)

func newTestLedger(t *testing.T, budget int) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "quota_usage_log.csv")
	ledger, err := NewLedger(config.QuotaConfig{
		CostsFile:   filepath.Join(dir, "missing_costs.json"),
		LogFile:     logPath,
		DailyBudget: budget,
	}, time.UTC, zap.NewNop())
	require.NoError(t, err)
	return ledger, logPath
}

func TestLookupCost(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000)
	require.Equal(t, 1600, ledger.LookupCost(CallVideosInsert))
	require.Equal(t, 100, ledger.LookupCost(CallSearchList))
	require.Equal(t, 1, ledger.LookupCost("unknown.call"))
}

func TestLoadCostTable_SideCarOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota_costs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"videos.insert": 100, "custom.call": 7}`), 0o644))

	table, err := LoadCostTable(path)
	require.NoError(t, err)
	require.Equal(t, 100, table.Lookup("videos.insert"))
	require.Equal(t, 7, table.Lookup("custom.call"))
	require.Equal(t, 1, table.Lookup("channels.list"))
}

func TestLoadCostTable_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota_costs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := LoadCostTable(path)
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestRecordAttempt_AppendsWithSingleHeader(t *testing.T) {
	ledger, logPath := newTestLedger(t, 10000)

	require.NoError(t, ledger.RecordAttempt(CallVideosInsert, 1600, models.QuotaRetriable, "HTTP Error: 503"))
	require.NoError(t, ledger.RecordAttempt(CallVideosInsert, 1600, models.QuotaSuccess, "Video upload successful"))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "timestamp,api_name,units,status,description", lines[0])

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, models.QuotaRetriable, entries[0].Outcome)
	require.Equal(t, "HTTP Error: 503", entries[0].Note)
	require.Equal(t, models.QuotaSuccess, entries[1].Outcome)
	require.Equal(t, 1600, entries[1].EstimatedUnits)
}

func TestEstimateBatchCost(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000)

	total := ledger.EstimateBatchCost(map[string]int{
		CallSearchList:   1,
		CallVideosList:   12,
		"mystery.method": 3,
	})
	require.Equal(t, 100+12+3, total)

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.Equal(t, models.QuotaEstimated, e.Outcome)
	}
	require.Equal(t, "mystery.method", entries[0].APICallKind)
	require.Equal(t, 3, entries[0].EstimatedUnits)
}

func TestUsage_CountsRealizedUnitsForToday(t *testing.T) {
	ledger, _ := newTestLedger(t, 2000)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	ledger.WithClock(func() time.Time { return now.Add(-24 * time.Hour) })
	require.NoError(t, ledger.RecordAttempt(CallVideosInsert, 1600, models.QuotaSuccess, "yesterday"))

	ledger.WithClock(func() time.Time { return now })
	require.NoError(t, ledger.RecordAttempt(CallVideosInsert, 1600, models.QuotaEstimated, "estimate"))
	require.NoError(t, ledger.RecordAttempt(CallChannelsList, 1, models.QuotaSuccess, "today"))
	require.NoError(t, ledger.RecordAttempt(CallVideosInsert, 1600, models.QuotaFailed, "Quota exceeded"))

	used, remaining, err := ledger.Usage()
	require.NoError(t, err)
	require.Equal(t, 1601, used)
	require.Equal(t, 399, remaining)
}

func TestEntries_MissingLedgerIsEmpty(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000)
	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRecordAttempt_ConcurrentAppends(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.RecordAttempt(CallVideosList, 1, models.QuotaSuccess, "parallel")
		}()
	}
	wg.Wait()

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 20)
}
