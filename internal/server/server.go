// Package server exposes the dashboard over HTTP and a websocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
	"stockwatch/internal/resilience"
	"stockwatch/internal/store"
	"stockwatch/internal/stream"
)

// Controller is the dashboard surface the server drives.
type Controller interface {
	Snapshot() *models.Snapshot
	Columns() []ranking.Column
	SetFilters(f models.Filters) error
	SetTickerFilter(text string) error
	SetSector(sector string) error
	SetLeverage(filter models.LeverageFilter) error
	ClearFilters() error
	ClickColumn(column string) (models.SortState, error)
	SetSort(s models.SortState) error
	Reload() error
	SetRefreshInterval(iv string) error
	SetPolling(on bool) error
	ForceUpdate(ctx context.Context, force bool) error
	DismissBanner() error
	ResetNotifications() int
}

const (
	_defaultListen   = "127.0.0.1:8080"
	_defaultPing     = 45 * time.Second
	_defaultSendBuf  = 64
	_historyLimit    = 50
	_shutdownTimeout = 5 * time.Second
)

// Server serves the REST routes and the /ws stream.
type Server struct {
	ctrl    Controller
	hub     *stream.Hub
	journal store.Journal
	monitor *resilience.HealthMonitor
	cfg     config.ServerConfig
	logger  zerolog.Logger
}

// New creates a server. journal may be nil when the store is disabled.
func New(ctrl Controller, hub *stream.Hub, journal store.Journal, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	if cfg.Listen == "" {
		cfg.Listen = _defaultListen
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = _defaultPing
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = _defaultSendBuf
	}
	return &Server{
		ctrl:    ctrl,
		hub:     hub,
		journal: journal,
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "server"),
	}
}

// WithHealth attaches component checks to /api/health.
func (s *Server) WithHealth(m *resilience.HealthMonitor) *Server {
	s.monitor = m
	return s
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/snapshot", s.snapshot)
	api.GET("/columns", s.columns)
	api.POST("/filters", s.setFilters)
	api.POST("/filters/clear", s.clearFilters)
	api.POST("/sort", s.setSort)
	api.POST("/reload", s.reload)
	api.POST("/refresh", s.setRefresh)
	api.POST("/update", s.update)
	api.POST("/banner/dismiss", s.dismiss)
	api.POST("/notifications/reset", s.resetNotifications)
	api.GET("/alerts/history", s.alertHistory)

	r.GET("/ws", gin.WrapF(s.serveWS))
	return r
}

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *Server) health(c *gin.Context) {
	snap := s.ctrl.Snapshot()
	body := gin.H{
		"status":     "ok",
		"rows":       len(snap.Rows),
		"polling":    snap.Polling,
		"session":    snap.Session,
		"updated_at": snap.UpdatedAt,
		"stream":     s.hub.GetMetrics(),
	}
	code := http.StatusOK
	if s.monitor != nil {
		report := s.monitor.Check(c.Request.Context())
		body["status"] = report.Status
		body["components"] = report.Components
		body["uptime"] = report.Uptime
		if report.Status == resilience.HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, body)
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

type columnInfo struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	Kind              string `json:"kind"`
	ExtendedHoursOnly bool   `json:"extended_hours_only,omitempty"`
}

func (s *Server) columns(c *gin.Context) {
	cols := s.ctrl.Columns()
	out := make([]columnInfo, 0, len(cols))
	for _, col := range cols {
		out = append(out, columnInfo{ID: col.ID, Label: col.Label, Kind: col.Kind.String(), ExtendedHoursOnly: col.ExtendedHoursOnly})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) setFilters(c *gin.Context) {
	var f models.Filters
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.ctrl.SetFilters(f))
}

func (s *Server) clearFilters(c *gin.Context) {
	s.respond(c, s.ctrl.ClearFilters())
}

type sortRequest struct {
	Column    string               `json:"column" binding:"required"`
	Direction models.SortDirection `json:"direction"`
}

func (s *Server) setSort(c *gin.Context) {
	var req sortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.ctrl.SetSort(models.SortState{Column: req.Column, Direction: req.Direction}))
}

func (s *Server) reload(c *gin.Context) {
	s.respond(c, s.ctrl.Reload())
}

type refreshRequest struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval"`
}

func (s *Server) setRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Interval != "" {
		if err := s.ctrl.SetRefreshInterval(req.Interval); err != nil {
			s.respond(c, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := s.ctrl.SetPolling(*req.Enabled); err != nil {
			s.respond(c, err)
			return
		}
	}
	s.respond(c, nil)
}

func (s *Server) update(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	s.respond(c, s.ctrl.ForceUpdate(c.Request.Context(), force))
}

func (s *Server) dismiss(c *gin.Context) {
	s.respond(c, s.ctrl.DismissBanner())
}

func (s *Server) resetNotifications(c *gin.Context) {
	n := s.ctrl.ResetNotifications()
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

func (s *Server) alertHistory(c *gin.Context) {
	if s.journal == nil {
		s.respond(c, apperrors.ErrJournalDisabled)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(_historyLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	filter := store.DeliveryFilter{
		Ticker: c.Query("ticker"),
		Type:   models.AlertType(c.Query("type")),
		Limit:  limit,
	}
	deliveries, err := s.journal.Deliveries(c.Request.Context(), filter)
	if err != nil {
		s.respond(c, err)
		return
	}
	if deliveries == nil {
		deliveries = []models.AlertDelivery{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

// respond writes the latest snapshot on success or a mapped error.
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func statusFor(err error) int {
	var apiErr *apperrors.APIError
	switch {
	case errors.Is(err, apperrors.ErrUnknownColumn),
		errors.Is(err, apperrors.ErrInvalidInterval),
		errors.Is(err, apperrors.ErrInvalidLeverage),
		errors.Is(err, apperrors.ErrConfigInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNoTickers):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrDashboardStopped),
		errors.Is(err, apperrors.ErrJournalDisabled),
		errors.Is(err, apperrors.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
