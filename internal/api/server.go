// Package api exposes the read-only status endpoints: health, an
// aggregate status view, and per-component stats.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/auth"
	"futures-radar-bot/internal/logging"
)

// StatsProvider is implemented by every component that reports runtime
// counters through the status API.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Server is the HTTP status server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	providers  map[string]StatsProvider
	startedAt  time.Time
	log        *logging.Logger
}

// NewServer builds the status server. authManager may be nil when auth
// is disabled; providers maps component names to their stats sources.
func NewServer(cfg config.ServerConfig, authManager *auth.Manager, providers map[string]StatsProvider) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		cfg:       cfg,
		providers: providers,
		startedAt: time.Now(),
		log:       logging.Default().WithComponent("api"),
	}

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	if authManager != nil {
		v1.Use(auth.Middleware(authManager))
	}
	v1.GET("/status", s.handleStatus)
	v1.GET("/stats/:component", s.handleComponentStats)

	return s
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("status server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("status server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns every component's stats in one document.
func (s *Server) handleStatus(c *gin.Context) {
	components := make(map[string]interface{}, len(s.providers))
	for name, p := range s.providers {
		components[name] = p.Stats()
	}
	c.JSON(http.StatusOK, gin.H{
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"components": components,
	})
}

func (s *Server) handleComponentStats(c *gin.Context) {
	name := c.Param("component")
	p, ok := s.providers[name]
	if !ok {
		known := make([]string, 0, len(s.providers))
		for k := range s.providers {
			known = append(known, k)
		}
		sort.Strings(known)
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "unknown component",
			"component":  name,
			"components": known,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"component": name,
		"stats":     p.Stats(),
	})
}
