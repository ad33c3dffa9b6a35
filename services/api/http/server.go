package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/patio/internal/logging"
	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/internal/plate"
	"github.com/02loveslollipop/patio/services/api/config"
	"github.com/02loveslollipop/patio/services/api/db"
	"github.com/02loveslollipop/patio/services/api/profile"
)

// ProfileService is implemented by profile.Service.
type ProfileService interface {
	GetProfile(ctx context.Context, vehicleID int64) (mileage.Profile, error)
	Recompute(ctx context.Context, vehicleID int64) (mileage.Estimate, error)
	Diagnose(ctx context.Context, vehicleID int64) (mileage.Diagnosis, error)
	Visits(ctx context.Context, vehicleID int64) ([]mileage.Visit, error)
	PreviewAdjust(ctx context.Context, vehicleID int64, edits []db.VisitEdit) (mileage.Estimate, error)
	SaveAdjust(ctx context.Context, vehicleID int64, edits []db.VisitEdit) (mileage.Estimate, error)
	Revert(ctx context.Context, vehicleID, odometerKM int64) (mileage.Estimate, error)
	Finalize(ctx context.Context, executionID, userID int64) (profile.Finalized, error)
	Proactive(ctx context.Context, rule mileage.DueRule, page int) (profile.ProactivePage, error)
	MarkContacted(ctx context.Context, vehicleID int64) (time.Time, error)
	MergeCandidates(ctx context.Context) ([]plate.Pair, error)
	Merge(ctx context.Context, oldID, newID int64) (mileage.Estimate, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     config.Config
	profile ProfileService
	health  Pinger
	engine  *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, svc ProfileService, health Pinger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(requestLogger())
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, profile: svc, health: health, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.registerV1Routes()
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logging.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordAPIRequest(c.Request.Method, c.FullPath(), status, elapsed)

		ev := logging.Ctx(c.Request.Context()).Info()
		if status >= http.StatusInternalServerError {
			ev = logging.Ctx(c.Request.Context()).Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("request")
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
