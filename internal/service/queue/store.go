// Package queue persists the upload work queue as a CSV file keyed by the
// source asset path and discovers new finished assets to enqueue.
package queue

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/pkg/fsutil"
)

// Store reads and rewrites the queue file. Every write replaces the whole file.
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the queue file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the queue in persisted order. Missing or corrupt storage is
// reported as ErrQueueRead.
func (s *Store) Load() ([]*models.QueueItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(models.ErrQueueRead, "read %s: %v", s.path, err)
	}

	items := []*models.QueueItem{}
	if len(bytes.TrimSpace(data)) == 0 {
		return items, nil
	}
	if err := gocsv.UnmarshalBytes(data, &items); err != nil {
		return nil, errors.Wrapf(models.ErrQueueRead, "decode %s: %v", s.path, err)
	}
	return items, nil
}

// LoadAll is Load that degrades to an empty queue after logging the failure.
func (s *Store) LoadAll() []*models.QueueItem {
	items, err := s.Load()
	if err != nil {
		s.logger.Warn("Failed to read upload queue, continuing with an empty queue",
			zap.String("path", s.path),
			zap.Error(err))
		return []*models.QueueItem{}
	}
	return items
}

// SelectNext returns the first item that has not been published yet.
func SelectNext(queue []*models.QueueItem) *models.QueueItem {
	for _, item := range queue {
		if !item.IsPublished() {
			return item
		}
	}
	return nil
}

// SelectPending returns up to limit unpublished items in queue order.
// A limit of zero or less returns all of them.
func SelectPending(queue []*models.QueueItem, limit int) []*models.QueueItem {
	var pending []*models.QueueItem
	for _, item := range queue {
		if item.IsPublished() {
			continue
		}
		pending = append(pending, item)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending
}

// Upsert replaces the row whose SourceAssetPath matches item, appends it when
// the key is absent, and writes the queue back. The updated queue is returned.
func (s *Store) Upsert(item *models.QueueItem, queue []*models.QueueItem) ([]*models.QueueItem, error) {
	if item == nil || item.SourceAssetPath == "" {
		return queue, errors.Wrap(models.ErrInvalidInput, "queue item needs a source asset path")
	}

	replaced := false
	for i, row := range queue {
		if row.SourceAssetPath == item.SourceAssetPath {
			copied := *item
			queue[i] = &copied
			replaced = true
			break
		}
	}
	if !replaced {
		s.logger.Info("Queue item not found, appending",
			zap.String("mosaic_filepath", item.SourceAssetPath))
		copied := *item
		queue = append(queue, &copied)
	}

	if err := s.Save(queue); err != nil {
		return queue, err
	}
	return queue, nil
}

// Remove drops the row keyed by sourceAssetPath and writes the queue back.
// Removing an absent key leaves the file untouched.
func (s *Store) Remove(sourceAssetPath string, queue []*models.QueueItem) ([]*models.QueueItem, error) {
	kept := make([]*models.QueueItem, 0, len(queue))
	for _, row := range queue {
		if row.SourceAssetPath != sourceAssetPath {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(queue) {
		return queue, nil
	}
	if err := s.Save(kept); err != nil {
		return queue, err
	}
	return kept, nil
}

// Save rewrites the queue file atomically.
func (s *Store) Save(queue []*models.QueueItem) error {
	if queue == nil {
		queue = []*models.QueueItem{}
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(&queue, &buf); err != nil {
		return errors.Wrapf(models.ErrQueueWrite, "encode queue: %v", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, buf.Bytes()); err != nil {
		return errors.Wrapf(models.ErrQueueWrite, "%v", err)
	}

	s.logger.Debug("Upload queue saved", zap.String("path", s.path), zap.Int("items", len(queue)))
	return nil
}

// Snapshot copies the current queue file into dir with a timestamped name.
// It returns an empty path when there is nothing to snapshot.
func (s *Store) Snapshot(dir string, now time.Time) (string, error) {
	if !fsutil.RegularFileExists(s.path) {
		return "", nil
	}
	target := filepath.Join(dir, fmt.Sprintf("file_upload_log_%s.csv", now.Format("20060102_150405")))
	if err := fsutil.CopyFile(s.path, target); err != nil {
		return "", errors.Wrap(err, "snapshot upload queue")
	}
	s.logger.Info("Archived upload queue snapshot", zap.String("path", target))
	return target, nil
}
