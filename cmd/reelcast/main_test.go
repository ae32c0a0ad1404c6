package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service"
)

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))

	got := truncate(strings.Repeat("x", 60), 10)
	require.Equal(t, 10, lipgloss.Width(got))
	require.True(t, strings.HasSuffix(got, "…"))
}

func TestRenderQueue(t *testing.T) {
	require.Contains(t, renderQueue(nil), "Queue is empty")

	out := renderQueue([]*models.QueueItem{
		{Title: "a", PublishURL: models.WatchURL("x"), PublishDate: "2024-03-06T01:00:00-08:00"},
		{Title: "b"},
	})
	require.Contains(t, out, "2 items, 1 pending")
	require.Contains(t, out, "2024-03-06T01:00:00-08:00")
}

func TestRunExitError(t *testing.T) {
	log := zap.NewNop()
	require.NoError(t, runExitError(log, nil))
	require.NoError(t, runExitError(log, fmt.Errorf("save: %w", models.ErrQueueWrite)))
	require.NoError(t, runExitError(log, service.ErrRunInProgress))
	require.ErrorIs(t, runExitError(log, models.ErrQuotaExceeded), models.ErrQuotaExceeded)
	require.ErrorIs(t, runExitError(log, models.ErrConfiguration), models.ErrConfiguration)
}
