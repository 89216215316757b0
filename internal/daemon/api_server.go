package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"sceneforge/internal/config"
	"sceneforge/internal/logging"
	"sceneforge/internal/services"
)

const (
	defaultLogLimit = 200
	logFollowWindow = 25 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	engine *gin.Engine

	server *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(srv.logger))
	r.Use(authMiddleware(cfg.Paths.APIToken))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	srv.routes(r)
	srv.engine = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      logFollowWindow + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/logs", s.handleLogs)
		api.POST("/notifications/test", s.handleTestNotification)
	}

	productions := r.Group("/productions")
	{
		productions.GET("", s.handleListProductions)
		productions.POST("", s.handleCreateProduction)
		productions.GET("/:id", s.handleGetProduction)
		productions.PUT("/:id", s.handleReplaceProduction)
		productions.PATCH("/:id", s.handlePatchProduction)
		productions.DELETE("/:id", s.handleDeleteProduction)
		productions.GET("/:id/export", s.handleExport)

		productions.POST("/:id/undo", s.handleUndo)
		productions.POST("/:id/redo", s.handleRedo)

		productions.POST("/:id/scenes", s.handleInsertScene)
		productions.POST("/:id/scenes/reorder", s.handleReorder)
		productions.PATCH("/:id/scenes/:sceneId", s.handleUpdateScene)
		productions.DELETE("/:id/scenes/:sceneId", s.handleDeleteScene)
		productions.POST("/:id/scenes/:sceneId/references", s.handleToggleReference)
		productions.POST("/:id/scenes/:sceneId/image", s.handleGenerateImage)
		productions.POST("/:id/scenes/:sceneId/video", s.handleGenerateVideo)

		productions.POST("/:id/produce", s.handleProduce)
		productions.GET("/:id/produce", s.handleProduceStatus)
	}
}

// serve blocks until the server is shut down. An empty bind disables the
// API and serve simply waits for ctx.
func (s *apiServer) serve(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		<-ctx.Done()
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *apiServer) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status(c.Request.Context()))
}

func (s *apiServer) handleTestNotification(c *gin.Context) {
	sent, message, err := s.daemon.TestNotification(c.Request.Context())
	if err != nil {
		s.respondError(c, services.Wrap(services.ErrExternalService, "daemon", "notify", message, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent, "message": message})
}

type logStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func (s *apiServer) handleLogs(c *gin.Context) {
	hub := s.daemon.LogStream()
	if hub == nil {
		c.JSON(http.StatusOK, logStreamResponse{Events: []logging.LogEvent{}})
		return
	}

	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryFlag(c.Query("follow"))
	tail := queryFlag(c.Query("tail"))
	productionID := strings.TrimSpace(c.Query("production"))
	component := strings.TrimSpace(c.Query("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), logFollowWindow)
		defer cancel()
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.respondError(c, err)
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if productionID != "" && evt.ProductionID != productionID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	c.JSON(http.StatusOK, logStreamResponse{Events: filtered, Next: next})
}

func queryFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

// respondError maps marked errors onto HTTP status codes.
func (s *apiServer) respondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), s.logger), "api request failed", "api_error",
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *apiServer) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
