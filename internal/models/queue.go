package models

// QueueItem is one row of the upload work queue. SourceAssetPath is the key.
type QueueItem struct {
	Title            string `csv:"title" json:"title"`
	FileCreationDate string `csv:"file_creation_date" json:"file_creation_date"`
	SourceAssetPath  string `csv:"mosaic_filepath" json:"mosaic_filepath"`
	LocalMediaPath   string `csv:"local_video_path" json:"local_video_path"`
	Description      string `csv:"description" json:"description"`
	Keywords         string `csv:"keywords" json:"keywords"`
	PublishDate      string `csv:"youtube_publish_date" json:"youtube_publish_date"`
	PublishURL       string `csv:"youtube_publish_url" json:"youtube_publish_url"`
}

// IsPublished reports whether the item already went through a successful upload.
func (q *QueueItem) IsPublished() bool {
	return q.PublishURL != ""
}

// QueueColumns is the fixed header of the queue file.
var QueueColumns = []string{
	"title",
	"file_creation_date",
	"mosaic_filepath",
	"local_video_path",
	"description",
	"keywords",
	"youtube_publish_date",
	"youtube_publish_url",
}
