package quota

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/ifuryst/reelcast/internal/models"
)

// Call kinds used by the pipeline.
const (
	CallVideosInsert      = "videos.insert"
	CallVideosList        = "videos.list"
	CallChannelsList      = "channels.list"
	CallPlaylistItemsList = "playlistItems.list"
	CallSearchList        = "search.list"
)

// CostTable maps an API call kind to its quota unit cost.
type CostTable map[string]int

// DefaultCosts is the YouTube Data API v3 cost table.
var DefaultCosts = CostTable{
	"activities.list":              1,
	"captions.list":                50,
	"captions.insert":              400,
	"captions.update":              450,
	"captions.delete":              50,
	"channelBanners.insert":        50,
	"channels.list":                1,
	"channels.update":              50,
	"channelSections.list":         1,
	"channelSections.insert":       50,
	"channelSections.update":       50,
	"channelSections.delete":       50,
	"comments.list":                1,
	"comments.insert":              50,
	"comments.update":              50,
	"comments.setModerationStatus": 50,
	"comments.delete":              50,
	"commentThreads.list":          1,
	"commentThreads.insert":        50,
	"commentThreads.update":        50,
	"guideCategories.list":         1,
	"i18nLanguages.list":           1,
	"i18nRegions.list":             1,
	"members.list":                 1,
	"membershipsLevels.list":       1,
	"playlistItems.list":           1,
	"playlistItems.insert":         50,
	"playlistItems.update":         50,
	"playlistItems.delete":         50,
	"playlists.list":               1,
	"playlists.insert":             50,
	"playlists.update":             50,
	"playlists.delete":             50,
	"search.list":                  100,
	"subscriptions.list":           1,
	"subscriptions.insert":         50,
	"subscriptions.delete":         50,
	"thumbnails.set":               50,
	"videoAbuseReportReasons.list": 1,
	"videoCategories.list":         1,
	"videos.list":                  1,
	"videos.insert":                1600,
	"videos.update":                50,
	"videos.rate":                  50,
	"videos.getRating":             1,
	"videos.reportAbuse":           50,
	"videos.delete":                50,
	"watermarks.set":               50,
	"watermarks.unset":             50,
}

// Lookup returns the cost of kind, or 1 when the table does not know it.
func (c CostTable) Lookup(kind string) int {
	if cost, ok := c[kind]; ok {
		return cost
	}
	return 1
}

// LoadCostTable reads a JSON object of kind to units. A missing file yields a
// copy of DefaultCosts.
func LoadCostTable(path string) (CostTable, error) {
	table := make(CostTable, len(DefaultCosts))
	for k, v := range DefaultCosts {
		table[k] = v
	}
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return table, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read quota cost table %s", path)
	}

	loaded := CostTable{}
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, errors.Wrapf(models.ErrConfiguration, "parse quota cost table %s: %v", path, err)
	}
	return loaded, nil
}
