package queue

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/pkg/fsutil"
	"github.com/ifuryst/reelcast/pkg/util"
)

const (
	storySummariesMarker = "_story_summaries"
	finalVideoDirName    = "final_voiceover_video"
	creationDateLayout   = "2006-01-02 15:04:05"
)

// storyMetadata is the subset of the story JSON written by the generation stages.
type storyMetadata struct {
	MovieTitle       string          `json:"movie_title"`
	StorySummary     string          `json:"story_summary"`
	ChaptersCombined string          `json:"chapters_combined"`
	StoryKeywords    json.RawMessage `json:"story_keywords"`
}

func (m storyMetadata) keywords() string {
	if len(m.StoryKeywords) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.StoryKeywords, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(m.StoryKeywords, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

// DiscoveryReport summarises one queue preparation pass.
type DiscoveryReport struct {
	Added     []*models.QueueItem
	Unmatched []string
	Skipped   []string
}

// Discoverer matches finished mosaics with their story metadata and rendered
// video and turns them into queue items.
type Discoverer struct {
	cfg      config.QueueConfig
	location *time.Location
	logger   *zap.Logger
}

func NewDiscoverer(cfg config.QueueConfig, loc *time.Location, logger *zap.Logger) *Discoverer {
	if loc == nil {
		loc = time.Local
	}
	return &Discoverer{cfg: cfg, location: loc, logger: logger}
}

// Discover scans the mosaics directory and returns existing with newly found
// items appended in file creation order. Mosaics without a rendered video are
// moved to the unmatched directory.
func (d *Discoverer) Discover(existing []*models.QueueItem) ([]*models.QueueItem, *DiscoveryReport, error) {
	report := &DiscoveryReport{}

	entries, err := os.ReadDir(d.cfg.MosaicsDir)
	if os.IsNotExist(err) {
		d.logger.Info("Mosaics directory does not exist yet", zap.String("dir", d.cfg.MosaicsDir))
		return existing, report, nil
	}
	if err != nil {
		return existing, report, err
	}

	known := make(map[string]bool, len(existing))
	for _, item := range existing {
		known[item.SourceAssetPath] = true
	}

	byTimestamp := make(map[string][]string)
	var timestamps []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		path, err := filepath.Abs(filepath.Join(d.cfg.MosaicsDir, entry.Name()))
		if err != nil {
			return existing, report, err
		}
		if known[path] {
			continue
		}
		ts := extractTimestamp(baseName(path))
		if ts == "" {
			d.logger.Debug("Mosaic name has no story timestamp, ignoring", zap.String("path", path))
			continue
		}
		if _, ok := byTimestamp[ts]; !ok {
			timestamps = append(timestamps, ts)
		}
		byTimestamp[ts] = append(byTimestamp[ts], path)
	}
	sort.Strings(timestamps)

	var added []*models.QueueItem
	for _, ts := range timestamps {
		paths := byTimestamp[ts]
		if len(paths) != 1 {
			d.logger.Warn("Several mosaics share a story timestamp, skipping",
				zap.String("timestamp", ts),
				zap.Strings("paths", paths))
			report.Skipped = append(report.Skipped, paths...)
			continue
		}

		mosaic := paths[0]
		item, ok := d.match(mosaic)
		if !ok {
			report.Unmatched = append(report.Unmatched, mosaic)
			if dst, err := fsutil.MoveToDir(mosaic, d.cfg.UnmatchedDir); err != nil {
				d.logger.Error("Failed to move unmatched mosaic", zap.String("path", mosaic), zap.Error(err))
			} else {
				d.logger.Info("No matching video found, moved mosaic aside",
					zap.String("path", mosaic),
					zap.String("moved_to", dst))
			}
			continue
		}
		added = append(added, item)
	}

	sort.SliceStable(added, func(i, j int) bool {
		if added[i].FileCreationDate != added[j].FileCreationDate {
			return added[i].FileCreationDate < added[j].FileCreationDate
		}
		return added[i].SourceAssetPath < added[j].SourceAssetPath
	})
	report.Added = added

	d.logger.Info("Queue preparation finished",
		zap.Int("added", len(report.Added)),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("skipped", len(report.Skipped)))

	return append(existing, added...), report, nil
}

// match looks for a story JSON whose name prefixes the mosaic name inside an
// archive run directory that also holds the rendered video.
func (d *Discoverer) match(mosaic string) (*models.QueueItem, bool) {
	mosaicBase := baseName(mosaic)
	modelPart := extractModelPart(mosaicBase)
	if modelPart == "" {
		return nil, false
	}

	runDirs, err := os.ReadDir(d.cfg.ArchiveDir)
	if err != nil {
		d.logger.Warn("Failed to read archive directory", zap.String("dir", d.cfg.ArchiveDir), zap.Error(err))
		return nil, false
	}

	for _, runDir := range runDirs {
		if !runDir.IsDir() {
			continue
		}
		runPath := filepath.Join(d.cfg.ArchiveDir, runDir.Name())
		videoPath := findVideo(filepath.Join(runPath, finalVideoDirName), modelPart)
		if videoPath == "" {
			continue
		}

		var item *models.QueueItem
		_ = filepath.WalkDir(runPath, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			if !strings.HasPrefix(mosaicBase, baseName(path)) {
				return nil
			}
			meta, err := readStoryMetadata(path)
			if err != nil {
				d.logger.Warn("Failed to read story metadata", zap.String("path", path), zap.Error(err))
				return nil
			}
			item = d.newItem(mosaic, videoPath, meta)
			return fs.SkipAll
		})
		if item != nil {
			return item, true
		}
	}
	return nil, false
}

func (d *Discoverer) newItem(mosaic, video string, meta *storyMetadata) *models.QueueItem {
	created := ""
	if info, err := os.Stat(mosaic); err == nil {
		created = info.ModTime().In(d.location).Format(creationDateLayout)
	}

	title := meta.MovieTitle
	if title == "" {
		title = "N/A"
	}
	summary := meta.StorySummary
	if summary == "" {
		summary = "N/A"
	}

	absVideo, err := filepath.Abs(video)
	if err != nil {
		absVideo = video
	}

	return &models.QueueItem{
		Title:            title,
		FileCreationDate: created,
		SourceAssetPath:  mosaic,
		LocalMediaPath:   absVideo,
		Description:      util.TruncateDescription(util.SanitizeText(summary + " " + meta.ChaptersCombined)),
		Keywords:         util.SanitizeText(meta.keywords()),
	}
}

func readStoryMetadata(path string) (*storyMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta storyMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func findVideo(dir, modelPart string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.Contains(entry.Name(), modelPart) {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extractTimestamp(name string) string {
	if i := strings.Index(name, storySummariesMarker); i > 0 {
		return name[:i]
	}
	return ""
}

func extractModelPart(name string) string {
	marker := storySummariesMarker + "_"
	if i := strings.Index(name, marker); i >= 0 {
		return name[i+len(marker):]
	}
	return ""
}
