package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/internal/service"
	"github.com/ifuryst/reelcast/internal/service/publisher"
	"github.com/ifuryst/reelcast/internal/service/publishtime"
	"github.com/ifuryst/reelcast/internal/service/queue"
)

type Server struct {
	Config *config.Config
	App    *service.App
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Auth         *service.AuthService
	Scheduler    *service.Scheduler
	StatsUpdater *service.StatsUpdater
	Watcher      *service.AssetWatcher
}

// NewServer wires the application against the configured YouTube channel.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	app, err := service.NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	if err := app.Connect(ctx, nil); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to connect to youtube: %w", err)
	}
	return NewServerWithApp(app, logger), nil
}

// NewServerWithApp builds the router around an already connected App.
func NewServerWithApp(app *service.App, logger *zap.Logger) *Server {
	cfg := app.Config
	gin.SetMode(cfg.Server.Mode)

	srv := &Server{
		Config:       cfg,
		App:          app,
		Router:       gin.New(),
		Logger:       logger,
		Auth:         service.NewAuthService(logger.Named("auth"), cfg.Server.TOTPSecret),
		Scheduler:    service.NewScheduler(&cfg.Scheduler, logger.Named("scheduler"), app.Pipeline),
		StatsUpdater: service.NewStatsUpdater(app.History, app.Store, app.Ledger, logger.Named("stats"), time.Hour),
	}
	if cfg.Queue.Watch {
		srv.Watcher = service.NewAssetWatcher(cfg.Queue.MosaicsDir, app.Pipeline, logger.Named("watcher"))
	}

	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	{
		api.GET("/queue", s.handleGetQueue)
		api.GET("/quota", s.handleGetQuota)
		api.GET("/schedule/next", s.handleGetNextSlot)
		api.GET("/uploads", s.handleGetUploads)
		api.GET("/errors", s.handleGetErrors)
		api.GET("/stats", s.handleGetStats)
		api.POST("/run", s.Auth.AuthMiddleware(), s.handleRun)
	}
}

func (s *Server) handleGetQueue(c *gin.Context) {
	items, err := s.App.Store.Load()
	if err != nil {
		s.Logger.Warn("Failed to read upload queue", zap.Error(err))
		items = []*models.QueueItem{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   items,
		"pending": len(queue.SelectPending(items, 0)),
	})
}

func (s *Server) handleGetQuota(c *gin.Context) {
	entries, err := s.App.Ledger.Entries()
	if err != nil {
		s.Logger.Error("Failed to read quota log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read quota log"})
		return
	}
	used, remaining, err := s.App.Ledger.Usage()
	if err != nil {
		s.Logger.Error("Failed to compute quota usage", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute quota usage"})
		return
	}

	if limit := queryInt(c, "limit", 0); limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"budget":    s.App.Ledger.Budget(),
		"used":      used,
		"remaining": remaining,
		"entries":   entries,
	})
}

func (s *Server) handleGetNextSlot(c *gin.Context) {
	scheduled, err := s.App.Platform.ListScheduled(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list scheduled videos", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	next, err := s.App.Scheduler.NextPublishTime(scheduled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	interval, _ := publishtime.Interval(s.App.Scheduler.Frequency())

	c.JSON(http.StatusOK, gin.H{
		"last_scheduled": models.LatestScheduled(scheduled),
		"scheduled":      len(scheduled),
		"next_slot":      next,
		"following_slot": s.App.Scheduler.Following(next),
		"interval":       interval.String(),
	})
}

func (s *Server) handleGetUploads(c *gin.Context) {
	jobs, err := s.App.History.RecentUploads(queryInt(c, "limit", 50))
	if err != nil {
		s.Logger.Error("Failed to get upload history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get uploads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": jobs, "history_enabled": s.App.History.Enabled()})
}

func (s *Server) handleGetErrors(c *gin.Context) {
	logs, err := s.App.History.RecentErrors(queryInt(c, "limit", 50))
	if err != nil {
		s.Logger.Error("Failed to get error logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get errors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

func (s *Server) handleGetStats(c *gin.Context) {
	stats, err := s.App.History.DailyStats(queryInt(c, "days", 7))
	if err != nil {
		s.Logger.Error("Failed to get daily stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleRun(c *gin.Context) {
	report, err := s.App.Pipeline.Run(c.Request.Context())
	if err != nil {
		s.Logger.Error("Pipeline run failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrQuotaExceeded), publisher.StatusCode(err) == http.StatusForbidden:
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if s.App.History.Enabled() {
		s.StatsUpdater.Start(ctx)
	}
	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start asset watcher: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Scheduler.Stop()
	s.StatsUpdater.Stop()
	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	defer func() {
		if err := s.App.Close(); err != nil {
			s.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
