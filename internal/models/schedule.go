package models

import "time"

// ScheduledItem is a remote video that is scheduled but not yet public.
type ScheduledItem struct {
	VideoID              string    `json:"video_id,omitempty"`
	Title                string    `json:"title"`
	ScheduledPublishTime time.Time `json:"scheduled_publish_time"`
}

// LatestScheduled returns the item with the greatest publish time, or nil.
func LatestScheduled(items []ScheduledItem) *ScheduledItem {
	var latest *ScheduledItem
	for i := range items {
		if latest == nil || items[i].ScheduledPublishTime.After(latest.ScheduledPublishTime) {
			latest = &items[i]
		}
	}
	return latest
}
