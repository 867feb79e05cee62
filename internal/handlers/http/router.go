package http

import (
	"net/http"
	"time"

	"ndilive/internal/core/ports"
	"ndilive/internal/infrastructure/middleware"
	"ndilive/internal/infrastructure/monitoring"
	"ndilive/pkg/config"
	"ndilive/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	_ ports.SourceHTTPHandler = (*SourceHandler)(nil)
	_ ports.PlayerHTTPHandler = (*PlayerHandler)(nil)
)

type RouterConfig struct {
	Config  *config.Config
	Logger  *zap.Logger
	Sources ports.SourceHTTPHandler
	Players ports.PlayerHTTPHandler
	Frames  ports.FrameStreamHandler
	Health  *monitoring.HealthChecker
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(rc RouterConfig) *gin.Engine {
	cfg := rc.Config
	log := rc.Logger.Sugar()
	startTime := time.Now()

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(logger.NewContextLogger(rc.Logger)))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.ErrorHandlerMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		status := rc.Health.LastStatus()
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"checks":    status.Checks,
			"timestamp": status.Timestamp,
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if !rc.Health.IsReady(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "timestamp": time.Now()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
	})

	if rc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(rc.Metrics))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	api.Use(middleware.AuthMiddleware(cfg))
	{
		api.GET("/sources", rc.Sources.ListSources)
		api.GET("/sources/:name", rc.Sources.GetSource)
		api.GET("/directory/:instance", rc.Sources.GetInstanceSources)

		api.GET("/players", rc.Players.ListPlayers)
		api.GET("/players/:name", rc.Players.GetPlayer)
		api.POST("/players/:name/connect", rc.Players.ConnectPlayer)
		api.DELETE("/players/:name", rc.Players.DeletePlayer)
	}

	// long-lived streams stay out of the concurrency cap
	if rc.Frames != nil {
		streams := router.Group("/api/v1")
		streams.Use(middleware.AuthMiddleware(cfg))
		streams.GET("/players/:name/frames", rc.Frames.HandleFrames)
	}

	return router
}
