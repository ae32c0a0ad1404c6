package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/models"
)

func sampleQueue() []*models.QueueItem {
	return []*models.QueueItem{
		{
			Title:            "The Lighthouse Keeper",
			FileCreationDate: "2024-03-01 10:00:00",
			SourceAssetPath:  "/data/mosaics/20240301_story_summaries_gpt.png",
			LocalMediaPath:   "/data/archive/run1/final_voiceover_video/gpt.mp4",
			Description:      "A keeper, a storm, and a ship.\nChapter 1 begins \"here\".",
			Keywords:         "sea, storm",
		},
		{
			Title:            "Second Story",
			FileCreationDate: "2024-03-02 10:00:00",
			SourceAssetPath:  "/data/mosaics/20240302_story_summaries_gpt.png",
			LocalMediaPath:   "/data/archive/run2/final_voiceover_video/gpt.mp4",
			PublishDate:      "2024-03-05T17:00:00Z",
			PublishURL:       "https://www.youtube.com/watch?v=abc",
		},
		{
			Title:           "Third Story",
			SourceAssetPath: "/data/mosaics/20240303_story_summaries_gpt.png",
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "file_upload_log.csv"), zap.NewNop())
	items := sampleQueue()

	require.NoError(t, store.Save(items))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, items, loaded)
}

func TestStore_SaveWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_upload_log.csv")
	store := NewStore(path, zap.NewNop())

	require.NoError(t, store.Save(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "title,file_creation_date,mosaic_filepath,local_video_path")

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestStore_UpsertReplacesExisting(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "file_upload_log.csv"), zap.NewNop())
	queue := sampleQueue()
	require.NoError(t, store.Save(queue))

	updated := *queue[0]
	updated.PublishDate = "2024-03-06T01:00:00Z"
	updated.PublishURL = models.WatchURL("xyz")

	queue, err := store.Upsert(&updated, queue)
	require.NoError(t, err)
	require.Len(t, queue, 3)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.Equal(t, "https://www.youtube.com/watch?v=xyz", loaded[0].PublishURL)
	require.Equal(t, "Second Story", loaded[1].Title)
}

func TestStore_UpsertAppendsAbsentKey(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "file_upload_log.csv"), zap.NewNop())
	queue := sampleQueue()

	queue, err := store.Upsert(&models.QueueItem{Title: "New", SourceAssetPath: "/data/mosaics/new.png"}, queue)
	require.NoError(t, err)
	require.Len(t, queue, 4)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	require.Equal(t, "/data/mosaics/new.png", loaded[3].SourceAssetPath)
}

func TestStore_RemoveDropsRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_upload_log.csv")
	store := NewStore(path, zap.NewNop())
	queue := sampleQueue()
	require.NoError(t, store.Save(queue))

	queue, err := store.Remove("/data/mosaics/20240301_story_summaries_gpt.png", queue)
	require.NoError(t, err)
	require.Len(t, queue, 2)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "Second Story", loaded[0].Title)
	require.Equal(t, "Third Story", loaded[1].Title)
}

func TestStore_RemoveAbsentKeyDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_upload_log.csv")
	store := NewStore(path, zap.NewNop())

	queue, err := store.Remove("/data/mosaics/missing.png", sampleQueue())
	require.NoError(t, err)
	require.Len(t, queue, 3)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestStore_UpsertRequiresKey(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "file_upload_log.csv"), zap.NewNop())

	_, err := store.Upsert(&models.QueueItem{Title: "no key"}, nil)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestStore_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := NewStore(filepath.Join(dir, "missing.csv"), zap.NewNop())
	_, err := missing.Load()
	require.ErrorIs(t, err, models.ErrQueueRead)
	require.NotNil(t, missing.LoadAll())
	require.Empty(t, missing.LoadAll())

	corruptPath := filepath.Join(dir, "corrupt.csv")
	require.NoError(t, os.WriteFile(corruptPath, []byte("title,mosaic_filepath\n\"unterminated,x\n"), 0o644))
	corrupt := NewStore(corruptPath, zap.NewNop())
	_, err = corrupt.Load()
	require.ErrorIs(t, err, models.ErrQueueRead)
	require.Empty(t, corrupt.LoadAll())
}

func TestSelectNext(t *testing.T) {
	queue := sampleQueue()
	queue[0].PublishURL = "https://www.youtube.com/watch?v=done"

	next := SelectNext(queue)
	require.NotNil(t, next)
	require.Equal(t, "Third Story", next.Title)

	queue[2].PublishURL = "https://www.youtube.com/watch?v=done2"
	require.Nil(t, SelectNext(queue))
	require.Nil(t, SelectNext(nil))
}

func TestSelectPending(t *testing.T) {
	queue := append(sampleQueue(), &models.QueueItem{Title: "Fourth", SourceAssetPath: "/d/4.png"})

	pending := SelectPending(queue, 2)
	require.Len(t, pending, 2)
	require.Equal(t, "The Lighthouse Keeper", pending[0].Title)
	require.Equal(t, "Third Story", pending[1].Title)

	require.Len(t, SelectPending(queue, 0), 3)
}

func TestStore_Snapshot(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "file_upload_log.csv"), zap.NewNop())
	now := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

	path, err := store.Snapshot(filepath.Join(dir, "archived_csv"), now)
	require.NoError(t, err)
	require.Empty(t, path)

	require.NoError(t, store.Save(sampleQueue()))
	path, err = store.Snapshot(filepath.Join(dir, "archived_csv"), now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "archived_csv", "file_upload_log_20240305_093000.csv"), path)

	original, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	copied, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, copied)
}
