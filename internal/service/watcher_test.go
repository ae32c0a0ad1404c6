package service

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/service/queue"
)

type countingPreparer struct {
	calls atomic.Int32
}

func (p *countingPreparer) PrepareQueue() (*queue.DiscoveryReport, error) {
	p.calls.Add(1)
	return &queue.DiscoveryReport{}, nil
}

func TestAssetWatcher_PreparesAfterNewMosaic(t *testing.T) {
	dir := t.TempDir()
	preparer := &countingPreparer{}
	w := NewAssetWatcher(dir, preparer, zap.NewNop()).WithDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_story_summaries_m.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_story_summaries_m.png"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return preparer.calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(1), preparer.calls.Load())
}

func TestIsMosaicEvent(t *testing.T) {
	require.True(t, isMosaicEvent(fsnotify.Event{Name: "/m/x.PNG", Op: fsnotify.Create}))
	require.True(t, isMosaicEvent(fsnotify.Event{Name: "/m/x.png", Op: fsnotify.Write}))
	require.False(t, isMosaicEvent(fsnotify.Event{Name: "/m/x.png", Op: fsnotify.Remove}))
	require.False(t, isMosaicEvent(fsnotify.Event{Name: "/m/x.csv", Op: fsnotify.Create}))
}
