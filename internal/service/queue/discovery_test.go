package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
)

type discoveryFixture struct {
	cfg     config.QueueConfig
	mosaics string
	archive string
}

func newDiscoveryFixture(t *testing.T) *discoveryFixture {
	t.Helper()
	root := t.TempDir()
	f := &discoveryFixture{
		mosaics: filepath.Join(root, "mosaics"),
		archive: filepath.Join(root, "archive"),
	}
	f.cfg = config.QueueConfig{
		MosaicsDir:   f.mosaics,
		ArchiveDir:   f.archive,
		UnmatchedDir: filepath.Join(f.mosaics, "unmatched_mosaics"),
	}
	require.NoError(t, os.MkdirAll(f.mosaics, 0o755))
	require.NoError(t, os.MkdirAll(f.archive, 0o755))
	return f
}

func (f *discoveryFixture) mosaic(t *testing.T, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(f.mosaics, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (f *discoveryFixture) run(t *testing.T, runName, storyBase, storyJSON, videoName string) string {
	t.Helper()
	runDir := filepath.Join(f.archive, runName)
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "stories"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "stories", storyBase+".json"), []byte(storyJSON), 0o644))
	if videoName == "" {
		return ""
	}
	videoDir := filepath.Join(runDir, finalVideoDirName)
	require.NoError(t, os.MkdirAll(videoDir, 0o755))
	video := filepath.Join(videoDir, videoName)
	require.NoError(t, os.WriteFile(video, []byte("mp4"), 0o644))
	return video
}

func TestDiscover_MatchesMosaicWithStoryAndVideo(t *testing.T) {
	f := newDiscoveryFixture(t)
	mtime := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	mosaic := f.mosaic(t, "20240301_1200_story_summaries_gpt4.png", mtime)
	video := f.run(t, "run_a", "20240301_1200",
		`{"movie_title":"The Keeper","story_summary":"A storm   rolls in.","chapters_combined":"Chapter 1 The light\nChapter 2 The ship","story_keywords":["sea","storm"]}`,
		"story_gpt4_final.mp4")

	d := NewDiscoverer(f.cfg, time.UTC, zap.NewNop())
	queue, report, err := d.Discover(nil)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Len(t, report.Added, 1)
	require.Empty(t, report.Unmatched)

	item := queue[0]
	require.Equal(t, "The Keeper", item.Title)
	require.Equal(t, mosaic, item.SourceAssetPath)
	require.Equal(t, video, item.LocalMediaPath)
	require.Equal(t, "2024-03-01 18:00:00", item.FileCreationDate)
	require.Equal(t, "A storm rolls in. ==== Chapter 1 ==== The light ==== Chapter 2 ==== The ship", item.Description)
	require.Equal(t, "sea, storm", item.Keywords)
	require.False(t, item.IsPublished())
}

func TestDiscover_UnmatchedMosaicMovedAside(t *testing.T) {
	f := newDiscoveryFixture(t)
	mosaic := f.mosaic(t, "20240302_story_summaries_claude.png", time.Now())
	f.run(t, "run_b", "20240302", `{"movie_title":"No Video"}`, "")

	d := NewDiscoverer(f.cfg, time.UTC, zap.NewNop())
	queue, report, err := d.Discover(nil)
	require.NoError(t, err)
	require.Empty(t, queue)
	require.Equal(t, []string{mosaic}, report.Unmatched)

	_, err = os.Stat(mosaic)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.cfg.UnmatchedDir, filepath.Base(mosaic)))
	require.NoError(t, err)
}

func TestDiscover_SkipsKnownAndDuplicateTimestamps(t *testing.T) {
	f := newDiscoveryFixture(t)
	known := f.mosaic(t, "20240303_story_summaries_gpt4.png", time.Now())
	dupA := f.mosaic(t, "20240304_story_summaries_gpt4.png", time.Now())
	dupB := f.mosaic(t, "20240304_story_summaries_claude.png", time.Now())
	f.run(t, "run_c", "20240304", `{"movie_title":"Dup"}`, "gpt4_claude.mp4")

	existing := []*models.QueueItem{{Title: "Known", SourceAssetPath: known}}
	d := NewDiscoverer(f.cfg, time.UTC, zap.NewNop())
	queue, report, err := d.Discover(existing)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "Known", queue[0].Title)
	require.ElementsMatch(t, []string{dupA, dupB}, report.Skipped)
}

func TestDiscover_OrdersByCreationDate(t *testing.T) {
	f := newDiscoveryFixture(t)
	f.mosaic(t, "b_story_summaries_m1.png", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	f.mosaic(t, "a_story_summaries_m2.png", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	f.run(t, "run_1", "b", `{"movie_title":"Earlier"}`, "video_m1.mp4")
	f.run(t, "run_2", "a", `{"movie_title":"Later"}`, "video_m2.mp4")

	d := NewDiscoverer(f.cfg, time.UTC, zap.NewNop())
	queue, _, err := d.Discover(nil)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, "Earlier", queue[0].Title)
	require.Equal(t, "Later", queue[1].Title)
}

func TestDiscover_TruncatesLongDescription(t *testing.T) {
	f := newDiscoveryFixture(t)
	f.mosaic(t, "x_story_summaries_m.png", time.Now())
	long := strings.Repeat("word ", 2000)
	f.run(t, "run_x", "x", `{"movie_title":"Long","story_summary":"`+long+`"}`, "m.mp4")

	d := NewDiscoverer(f.cfg, time.UTC, zap.NewNop())
	queue, _, err := d.Discover(nil)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.True(t, strings.HasSuffix(queue[0].Description, "..."))
	require.Len(t, []rune(queue[0].Description), 4903)
}

func TestDiscover_MissingMosaicsDir(t *testing.T) {
	cfg := config.QueueConfig{MosaicsDir: filepath.Join(t.TempDir(), "nope")}
	d := NewDiscoverer(cfg, time.UTC, zap.NewNop())

	queue, report, err := d.Discover(nil)
	require.NoError(t, err)
	require.Empty(t, queue)
	require.Empty(t, report.Added)
}
