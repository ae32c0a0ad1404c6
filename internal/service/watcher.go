package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/service/queue"
)

const defaultWatchDebounce = 5 * time.Second

// QueuePreparer is satisfied by PipelineService.
type QueuePreparer interface {
	PrepareQueue() (*queue.DiscoveryReport, error)
}

// AssetWatcher re-runs queue preparation when new mosaics land in the
// mosaics directory. Bursts of events are debounced.
type AssetWatcher struct {
	dir      string
	preparer QueuePreparer
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewAssetWatcher(dir string, preparer QueuePreparer, logger *zap.Logger) *AssetWatcher {
	return &AssetWatcher{
		dir:      dir,
		preparer: preparer,
		debounce: defaultWatchDebounce,
		logger:   logger,
	}
}

// WithDebounce overrides the quiet period before preparation runs.
func (w *AssetWatcher) WithDebounce(d time.Duration) *AssetWatcher {
	w.debounce = d
	return w
}

func (w *AssetWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher
	w.logger.Info("Watching for new mosaics", zap.String("dir", w.dir))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *AssetWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	w.wg.Wait()
	w.logger.Info("Asset watcher stopped")
}

func (w *AssetWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isMosaicEvent(event) {
				continue
			}
			w.logger.Debug("Mosaic changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Asset watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			report, err := w.preparer.PrepareQueue()
			if err != nil {
				w.logger.Error("Queue preparation failed", zap.Error(err))
				continue
			}
			w.logger.Info("Queue prepared after new mosaics",
				zap.Int("added", len(report.Added)),
				zap.Int("unmatched", len(report.Unmatched)))
		}
	}
}

func isMosaicEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".png")
}
