package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"stock-alert-service/internal/alerts"
	"stock-alert-service/internal/database"
	"stock-alert-service/internal/finnhub"
	"stock-alert-service/internal/marketdata"
	"stock-alert-service/internal/refresh"
	"stock-alert-service/internal/sectors"
	"stock-alert-service/internal/stream"
)

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	AllowedOrigins string
}

// Deps are the components the status endpoints report on
type Deps struct {
	Repo        *database.Repository
	Cache       *marketdata.Cache
	Client      *finnhub.Client
	Streamer    *stream.Streamer
	AlertEngine *alerts.Engine
	SectorEval  *sectors.Evaluator
	Refresher   *refresh.Refresher
}

// Server is the read-only HTTP status surface
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
}

// NewServer creates the status server
func NewServer(cfg Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		deps:   deps,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	s.httpServer.Handler = router

	router.GET("/health", s.handleHealth)
	router.GET("/api/v1/status", s.handleStatus)

	return s
}

// Start runs the HTTP server in the background
func (s *Server) Start() {
	go func() {
		log.Printf("[API] Status server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[API] Server error: %v", err)
		}
	}()
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if err := s.deps.Repo.HealthCheck(ctx); err != nil {
		components["database"] = "down"
		healthy = false
	} else {
		components["database"] = "up"
	}

	if err := s.deps.Cache.Ping(ctx); err != nil {
		components["redis"] = "down"
		healthy = false
	} else {
		components["redis"] = "up"
	}

	if s.deps.Streamer.Stats().Connected {
		components["stream"] = "up"
	} else {
		// The streamer reconnects on its own; report degraded, not down
		components["stream"] = "degraded"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":    healthy,
		"components": components,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	used, remaining := s.deps.Client.LimiterStatus()
	alertTicks, alertLast := s.deps.AlertEngine.Stats()
	sectorTicks, sectorLast := s.deps.SectorEval.Stats()
	lastRefresh, refreshRuns := s.deps.Refresher.LastRun()

	c.JSON(http.StatusOK, gin.H{
		"stream": s.deps.Streamer.Stats(),
		"upstream": gin.H{
			"budget_used":      used,
			"budget_remaining": remaining,
			"memo":             s.deps.Client.MemoStats(),
		},
		"cache": gin.H{
			"healthy": s.deps.Cache.Healthy(),
		},
		"alerts": gin.H{
			"ticks":     alertTicks,
			"last_tick": alertLast,
		},
		"sectors": gin.H{
			"ticks":     sectorTicks,
			"last_tick": sectorLast,
		},
		"refresh": gin.H{
			"runs":     refreshRuns,
			"last_run": lastRefresh,
		},
	})
}
