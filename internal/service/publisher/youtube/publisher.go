// Package youtube implements the platform boundary on the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service/publisher"
)

const (
	callChannelsList      = "channels.list"
	callPlaylistItemsList = "playlistItems.list"
	callVideosList        = "videos.list"

	videosListBatch   = 50
	defaultChunkBytes = 8 * 1024 * 1024
)

// QuotaRecorder receives one entry per API call issued by the publisher.
type QuotaRecorder interface {
	LookupCost(kind string) int
	RecordAttempt(kind string, units int, outcome models.QuotaOutcome, note string) error
}

// Publisher talks to one channel.
type Publisher struct {
	svc       *youtube.Service
	cfg       config.YouTubeConfig
	location  *time.Location
	chunkSize int
	quota     QuotaRecorder
	logger    *zap.Logger
}

// NewService authorises with the configured OAuth credentials.
func NewService(ctx context.Context, cfg config.YouTubeConfig, logger *zap.Logger, opts ...option.ClientOption) (*youtube.Service, error) {
	client, err := NewHTTPClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return svc, nil
}

// NewPublisher wraps svc. quota may be nil, in which case list calls are not
// recorded. loc is the reference timezone for scheduled times.
func NewPublisher(svc *youtube.Service, cfg config.YouTubeConfig, uploadCfg config.UploadConfig, loc *time.Location, quota QuotaRecorder, logger *zap.Logger) *Publisher {
	chunk := uploadCfg.ChunkSizeMB * 1024 * 1024
	if chunk <= 0 {
		chunk = defaultChunkBytes
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Publisher{
		svc:       svc,
		cfg:       cfg,
		location:  loc,
		chunkSize: chunk,
		quota:     quota,
		logger:    logger,
	}
}

var _ publisher.Platform = (*Publisher)(nil)

// ListScheduled walks the channel's uploads playlist and keeps the private
// videos that carry a publish time.
func (p *Publisher) ListScheduled(ctx context.Context) ([]models.ScheduledItem, error) {
	playlistID, err := p.uploadsPlaylist(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := p.playlistVideoIDs(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var items []models.ScheduledItem
	for start := 0; start < len(ids); start += videosListBatch {
		end := start + videosListBatch
		if end > len(ids) {
			end = len(ids)
		}

		resp, err := p.svc.Videos.List([]string{"snippet", "status"}).
			Id(ids[start:end]...).
			Context(ctx).
			Do()
		p.record(callVideosList, err)
		if err != nil {
			return nil, fmt.Errorf("failed to list videos: %w", convertError(err))
		}

		for _, v := range resp.Items {
			if v.Status == nil || v.Status.PrivacyStatus != models.PrivacyPrivate || v.Status.PublishAt == "" {
				continue
			}
			publishAt, err := time.Parse(time.RFC3339, v.Status.PublishAt)
			if err != nil {
				p.logger.Warn("Ignoring video with unparsable publishAt",
					zap.String("video_id", v.Id),
					zap.String("publish_at", v.Status.PublishAt))
				continue
			}
			title := ""
			if v.Snippet != nil {
				title = v.Snippet.Title
			}
			items = append(items, models.ScheduledItem{
				VideoID:              v.Id,
				Title:                title,
				ScheduledPublishTime: publishAt.In(p.location),
			})
		}
	}

	p.logger.Info("Fetched scheduled videos",
		zap.Int("scanned", len(ids)),
		zap.Int("scheduled", len(items)))
	return items, nil
}

// CheckQuota issues a one-unit channels.list call.
func (p *Publisher) CheckQuota(ctx context.Context) error {
	_, err := p.svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	p.record(callChannelsList, err)
	if err == nil {
		return nil
	}

	err = convertError(err)
	if publisher.StatusCode(err) == 403 {
		return fmt.Errorf("%w: %v", models.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to check quota: %w", err)
}

// Insert uploads media in resumable chunks. Errors carrying an HTTP status
// are returned as *publisher.APIError.
func (p *Publisher) Insert(ctx context.Context, meta models.VideoMetadata, media io.Reader) (*models.RemoteVideo, error) {
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: meta.PrivacyStatus,
		},
	}
	if meta.PublishAt != nil {
		video.Status.PublishAt = meta.PublishAt.UTC().Format(time.RFC3339)
	}

	resp, err := p.svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, googleapi.ChunkSize(p.chunkSize)).
		ProgressUpdater(func(current, total int64) {
			p.logger.Debug("Upload progress",
				zap.String("title", meta.Title),
				zap.Int64("sent_bytes", current),
				zap.Int64("total_bytes", total))
		}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, convertError(err)
	}

	remote := &models.RemoteVideo{ID: resp.Id}
	if resp.Status != nil {
		remote.UploadStatus = resp.Status.UploadStatus
		if t, err := time.Parse(time.RFC3339, resp.Status.PublishAt); err == nil {
			remote.PublishAt = t
		}
	}
	if resp.Snippet != nil {
		if t, err := time.Parse(time.RFC3339, resp.Snippet.PublishedAt); err == nil {
			remote.PublishedAt = t
		}
	}
	return remote, nil
}

func (p *Publisher) uploadsPlaylist(ctx context.Context) (string, error) {
	call := p.svc.Channels.List([]string{"contentDetails"})
	if p.cfg.ChannelID != "" {
		call = call.Id(p.cfg.ChannelID)
	} else {
		call = call.Mine(true)
	}

	resp, err := call.Context(ctx).Do()
	p.record(callChannelsList, err)
	if err != nil {
		return "", fmt.Errorf("failed to get channel details: %w", convertError(err))
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		return "", fmt.Errorf("%w: channel not found", models.ErrConfiguration)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

func (p *Publisher) playlistVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	limit := p.cfg.MaxScanItems
	if limit <= 0 {
		limit = 50
	}

	var ids []string
	pageToken := ""
	for int64(len(ids)) < limit {
		pageSize := limit - int64(len(ids))
		if pageSize > videosListBatch {
			pageSize = videosListBatch
		}

		call := p.svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(pageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		p.record(callPlaylistItemsList, err)
		if err != nil {
			return nil, fmt.Errorf("failed to list uploads playlist: %w", convertError(err))
		}

		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	if int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (p *Publisher) record(kind string, err error) {
	if p.quota == nil {
		return
	}
	outcome, note := models.QuotaSuccess, ""
	if err != nil {
		outcome, note = models.QuotaFailed, convertError(err).Error()
	}
	if rerr := p.quota.RecordAttempt(kind, p.quota.LookupCost(kind), outcome, note); rerr != nil {
		p.logger.Warn("Failed to record quota usage", zap.String("api", kind), zap.Error(rerr))
	}
}

// convertError maps googleapi errors to publisher.APIError so callers can
// classify them without importing the API client.
func convertError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	msg := gerr.Message
	if msg == "" && len(gerr.Errors) > 0 {
		msg = gerr.Errors[0].Reason
	}
	return &publisher.APIError{StatusCode: gerr.Code, Message: msg}
}
