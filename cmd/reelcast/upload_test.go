package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/internal/service/upload"
)

type recordingPlatform struct {
	scheduled []models.ScheduledItem
	listErr   error
	inserts   []models.VideoMetadata
}

func (p *recordingPlatform) ListScheduled(context.Context) ([]models.ScheduledItem, error) {
	return p.scheduled, p.listErr
}

func (p *recordingPlatform) CheckQuota(context.Context) error { return nil }

func (p *recordingPlatform) Insert(_ context.Context, meta models.VideoMetadata, media io.Reader) (*models.RemoteVideo, error) {
	if _, err := io.Copy(io.Discard, media); err != nil {
		return nil, err
	}
	p.inserts = append(p.inserts, meta)
	return &models.RemoteVideo{ID: "up1", UploadStatus: "uploaded"}, nil
}

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return la
}

func newUploadApp(t *testing.T, platform *recordingPlatform) *service.App {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	cfg.Queue.MosaicsDir = filepath.Join(dir, "mosaics")
	cfg.Queue.Path = filepath.Join(cfg.Queue.MosaicsDir, "file_upload_log.csv")
	cfg.Quota.LogFile = filepath.Join(dir, "quota_usage_log.csv")
	cfg.Quota.CostsFile = filepath.Join(dir, "quota_costs.json")

	app, err := service.NewApp(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	require.NoError(t, app.Connect(context.Background(), platform))

	la := losAngeles(t)
	app.Scheduler.WithClock(func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, la) })
	return app
}

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func TestUploadOne_TakesNextSlotWhenPublishAtOmitted(t *testing.T) {
	la := losAngeles(t)
	platform := &recordingPlatform{scheduled: []models.ScheduledItem{
		{VideoID: "s1", Title: "latest", ScheduledPublishTime: time.Date(2024, 3, 5, 17, 0, 0, 0, la)},
	}}
	app := newUploadApp(t, platform)

	result, err := uploadOne(context.Background(), app, upload.Request{FilePath: writeTestVideo(t), Title: "Story"})
	require.NoError(t, err)
	require.Equal(t, "up1", result.VideoID)

	require.Len(t, platform.inserts, 1)
	meta := platform.inserts[0]
	require.NotNil(t, meta.PublishAt)
	require.True(t, meta.PublishAt.Equal(time.Date(2024, 3, 6, 1, 0, 0, 0, la)))
	require.Equal(t, models.PrivacyPrivate, meta.PrivacyStatus)
}

func TestUploadOne_KeepsExplicitPublishAt(t *testing.T) {
	platform := &recordingPlatform{listErr: &publisher.APIError{StatusCode: 500}}
	app := newUploadApp(t, platform)

	at := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err := uploadOne(context.Background(), app, upload.Request{FilePath: writeTestVideo(t), Title: "Story", PublishAt: &at})
	require.NoError(t, err)
	require.True(t, platform.inserts[0].PublishAt.Equal(at))
}

func TestUploadOne_ScheduleListQuotaError(t *testing.T) {
	platform := &recordingPlatform{listErr: &publisher.APIError{StatusCode: 403}}
	app := newUploadApp(t, platform)

	_, err := uploadOne(context.Background(), app, upload.Request{FilePath: writeTestVideo(t), Title: "Story"})
	require.ErrorIs(t, err, models.ErrQuotaExceeded)
	require.Empty(t, platform.inserts)
}

func TestParsePublishAt(t *testing.T) {
	la := losAngeles(t)

	got, err := parsePublishAt("2024-01-01T08:00:00Z", la)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)))

	got, err = parsePublishAt("2024-01-01T08:00:00", la)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, la)))

	got, err = parsePublishAt("2024-01-01 08:00", la)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, la)))

	_, err = parsePublishAt("next tuesday", la)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
