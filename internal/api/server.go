// Package api is the thin HTTP layer over the schedule store, credential
// store and execution engine.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/journalpost/internal/auth"
	"github.com/journalpost/internal/config"
	"github.com/journalpost/internal/engine"
	"github.com/journalpost/internal/store"
	"go.uber.org/zap"
)

type Server struct {
	store   store.ScheduleStore
	auth    *auth.Service
	engine  *engine.Engine
	logger  *zap.Logger
	router  *gin.Engine
	started time.Time
}

func NewServer(st store.ScheduleStore, authSvc *auth.Service, eng *engine.Engine, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		store:   st,
		auth:    authSvc,
		engine:  eng,
		logger:  logger,
		started: time.Now(),
	}
	s.setupRouter(cfg)
	return s
}

func (s *Server) setupRouter(cfg *config.Config) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, auth.HeaderAPIKey)
	r.Use(cors.New(corsCfg))

	limiter := newKeyedLimiter(cfg.RateLimit.Window, cfg.RateLimit.Requests)

	r.GET("/health", s.health)

	authGroup := r.Group("/api/auth")
	authGroup.POST("/register", rateLimitByOwner(limiter), s.register)
	authGroup.GET("/verify", auth.Middleware(s.auth), s.verify)

	schedules := r.Group("/api/schedules")
	schedules.Use(auth.Middleware(s.auth), rateLimitByOwner(limiter))
	{
		schedules.POST("", s.createSchedule)
		schedules.GET("", s.listSchedules)
		schedules.GET("/:id", s.getSchedule)
		schedules.PUT("/:id", s.updateSchedule)
		schedules.DELETE("/:id", s.deleteSchedule)
		schedules.POST("/:id/execute", s.executeSchedule)
		schedules.POST("/:id/reset", s.resetSchedule)
	}

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	active, err := s.store.CountActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"uptime":          time.Since(s.started).String(),
		"activeSchedules": active,
	})
}

func (s *Server) register(c *gin.Context) {
	user, key, err := s.auth.Issue(c.Request.Context())
	if err != nil {
		s.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to issue API key"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id":    user.ID,
		"api_key":    key,
		"created_at": user.CreatedAt,
	})
}

func (s *Server) verify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": auth.OwnerID(c)})
}

// respondStoreErr maps the store's error taxonomy onto HTTP statuses.
func (s *Server) respondStoreErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
	case errors.Is(err, store.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "schedule already running or executed"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		s.logger.Error("unexpected store error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
