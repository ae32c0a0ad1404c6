package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/internal/service/publisher/youtube"
	"github.com/ifuryst/reelcast/internal/service/queue"
	"github.com/ifuryst/reelcast/internal/service/upload"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepare the queue, schedule and upload pending items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		app, err := connectApp(cmd.Context(), cfg, appLogger)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.Pipeline.Run(cmd.Context())
		if report != nil {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		}
		return runExitError(appLogger, err)
	},
}

// runExitError keeps configuration and quota errors as the command's error.
// Everything else is already in the printed report and only logged.
func runExitError(appLogger *zap.Logger, err error) error {
	switch {
	case err == nil:
	case models.IsFatalForRun(err):
		return err
	case errors.Is(err, service.ErrRunInProgress):
		appLogger.Info("Another run is in progress, nothing to do", zap.Error(err))
	default:
		appLogger.Warn("Run finished with errors", zap.Error(err))
	}
	return nil
}

var uploadFlags struct {
	file        string
	title       string
	description string
	keywords    string
	category    string
	privacy     string
	publishAt   string
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a single video file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		req := upload.Request{
			FilePath:      uploadFlags.file,
			Title:         uploadFlags.title,
			Description:   uploadFlags.description,
			Keywords:      uploadFlags.keywords,
			CategoryID:    uploadFlags.category,
			PrivacyStatus: uploadFlags.privacy,
		}
		if uploadFlags.publishAt != "" {
			loc, err := cfg.Scheduler.Location()
			if err != nil {
				return err
			}
			at, err := parsePublishAt(uploadFlags.publishAt, loc)
			if err != nil {
				return err
			}
			req.PublishAt = &at
		}

		app, err := connectApp(cmd.Context(), cfg, appLogger)
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := uploadOne(cmd.Context(), app, req)
		if err != nil {
			_ = printJSON(map[string]any{
				"status": upload.StatusOf(err),
				"error":  err.Error(),
			})
			return err
		}
		return printJSON(map[string]any{
			"status": models.UploadSucceeded,
			"result": result,
		})
	},
}

// publishAtLayouts are the ISO-8601 forms accepted without a zone offset.
var publishAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parsePublishAt reads an ISO-8601 time. Values without an offset are taken
// in loc.
func parsePublishAt(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range publishAtLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: publishAt %q is not an ISO-8601 time", models.ErrInvalidInput, value)
}

// uploadOne sends a single file. Without a publish time the video takes the
// next free slot on the channel's schedule.
func uploadOne(ctx context.Context, app *service.App, req upload.Request) (*models.UploadResult, error) {
	if req.PublishAt == nil {
		scheduled, err := app.Platform.ListScheduled(ctx)
		if err != nil {
			if publisher.StatusCode(err) == http.StatusForbidden {
				return nil, fmt.Errorf("%w: %v", models.ErrQuotaExceeded, err)
			}
			return nil, fmt.Errorf("failed to list scheduled videos: %w", err)
		}
		next, err := app.Scheduler.NextPublishTime(scheduled)
		if err != nil {
			return nil, err
		}
		req.PublishAt = &next
	}
	return app.Executor.Upload(ctx, req)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the next publish slot for the channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		app, err := connectApp(cmd.Context(), cfg, appLogger)
		if err != nil {
			return err
		}
		defer app.Close()

		scheduled, err := app.Platform.ListScheduled(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list scheduled videos: %w", err)
		}
		next, err := app.Scheduler.NextPublishTime(scheduled)
		if err != nil {
			return err
		}

		lines := []string{titleStyle.Render("Publish schedule")}
		if last := models.LatestScheduled(scheduled); last != nil {
			lines = append(lines, fmt.Sprintf("Last scheduled  %s  %s",
				last.ScheduledPublishTime.Format(time.RFC3339), mutedStyle.Render(last.Title)))
		} else {
			lines = append(lines, mutedStyle.Render("No videos scheduled"))
		}
		lines = append(lines,
			fmt.Sprintf("Next slot       %s", okStyle.Render(next.Format(time.RFC3339))),
			fmt.Sprintf("Following slot  %s", app.Scheduler.Following(next).Format(time.RFC3339)),
		)
		fmt.Println(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or prepare the upload queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items",
	RunE: func(*cobra.Command, []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		items, err := queue.NewStore(cfg.Queue.Path, appLogger).Load()
		if err != nil {
			return err
		}
		fmt.Println(renderQueue(items))
		return nil
	},
}

var queuePrepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Add newly rendered mosaics to the queue",
	RunE: func(*cobra.Command, []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		app, err := service.NewApp(cfg, appLogger)
		if err != nil {
			return err
		}
		defer app.Close()

		pipeline := service.NewPipelineService(cfg, service.PipelineDeps{
			Store:      app.Store,
			Discoverer: app.Discoverer,
			Ledger:     app.Ledger,
			Scheduler:  app.Scheduler,
			History:    app.History,
		}, appLogger.Named("pipeline"))
		report, err := pipeline.PrepareQueue()
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize the YouTube channel and cache the token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, appLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		oauthCfg, err := youtube.OAuthConfig(cfg.YouTube.ClientSecretFile)
		if err != nil {
			return err
		}
		tok, err := youtube.AuthorizeFromWeb(cmd.Context(), oauthCfg, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if err := youtube.SaveToken(cfg.YouTube.TokenCacheFile, tok); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Token saved to " + cfg.YouTube.TokenCacheFile))
		return nil
	},
}

var authTOTPCmd = &cobra.Command{
	Use:   "totp-secret [account]",
	Short: "Generate a secret for protecting the run trigger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		account := "reelcast"
		if len(args) == 1 {
			account = args[0]
		}
		secret, url, err := service.NewAuthService(zap.NewNop(), "").GenerateSecret(account)
		if err != nil {
			return err
		}
		fmt.Printf("Secret: %s\nURL:    %s\n", secret, url)
		fmt.Println(mutedStyle.Render("Set server.totp_secret to the secret and add the URL to an authenticator app."))
		return nil
	},
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadFlags.file, "file", "", "video file to upload")
	f.StringVar(&uploadFlags.title, "title", "", "video title")
	f.StringVar(&uploadFlags.description, "description", "", "video description")
	f.StringVar(&uploadFlags.keywords, "keywords", "", "comma separated keywords")
	f.StringVar(&uploadFlags.category, "category", "", "numeric video category id")
	f.StringVar(&uploadFlags.privacy, "privacyStatus", "", "public, private or unlisted")
	f.StringVar(&uploadFlags.publishAt, "publishAt", "", "scheduled publish time (ISO-8601, next free slot when omitted)")
	_ = uploadCmd.MarkFlagRequired("file")
	_ = uploadCmd.MarkFlagRequired("title")

	queueCmd.AddCommand(queueListCmd, queuePrepareCmd)
	authCmd.AddCommand(authTOTPCmd)
}

const titleWidth = 48

func renderQueue(items []*models.QueueItem) string {
	if len(items) == 0 {
		return mutedStyle.Render("Queue is empty")
	}

	rows := []string{titleStyle.Render(fmt.Sprintf("%-*s  %-25s  %s", titleWidth, "TITLE", "PUBLISH DATE", "STATUS"))}
	pending := 0
	for _, item := range items {
		status := okStyle.Render("published")
		if !item.IsPublished() {
			status = warnStyle.Render("pending")
			pending++
		}
		date := item.PublishDate
		if date == "" {
			date = "-"
		}
		rows = append(rows, fmt.Sprintf("%-*s  %-25s  %s", titleWidth, truncate(item.Title, titleWidth), date, status))
	}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("%d items, %d pending", len(items), pending)))
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
