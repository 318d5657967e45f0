// Package server exposes capture sessions, playlist parsing and downloads
// over HTTP, with download progress pushed to websocket clients.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/capture"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
)

// Options configures a Server.
type Options struct {
	// OutputDir receives finished downloads.
	OutputDir string
	// MaxDownloads is how many downloads may run at once. Zero means one.
	MaxDownloads int
	// AllowOrigins lists the origins allowed by CORS. Empty allows all.
	AllowOrigins []string
}

// Server exposes capture sessions and downloads over HTTP, with progress
// pushed to websocket clients.
type Server struct {
	svc      *grab.Service
	registry *capture.Registry
	capturer *capture.Capturer
	hub      *Hub
	slots    *slots
	opts     Options
	log      zerolog.Logger

	// ctx outlives requests; downloads run on it until Close
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// New returns a Server recording captures into registry. Call Close to stop
// running downloads.
func New(svc *grab.Service, registry *capture.Registry, opts Options, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		svc:      svc,
		registry: registry,
		capturer: capture.NewCapturer(registry, log.With().Str("component", "capture").Logger()),
		hub:      NewHub(log.With().Str("component", "hub").Logger()),
		slots:    newSlots(opts.MaxDownloads),
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	api := r.Group("/api")
	{
		api.GET("/status", s.status)

		api.POST("/sessions", s.createSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.POST("/sessions/:id/requests", s.recordRequest)
		api.POST("/sessions/:id/responses", s.recordResponse)
		api.GET("/sessions/:id/media", s.listMedia)

		api.POST("/parse", s.parse)
		api.POST("/download", s.download)
	}

	r.GET("/ws", gin.WrapH(s.hub))
	return r
}

// Wait blocks until running downloads finish.
func (s *Server) Wait() {
	s.jobs.Wait()
}

// Close cancels running downloads, waits for them and disconnects
// websocket clients.
func (s *Server) Close() {
	s.cancel()
	s.jobs.Wait()
	s.hub.Close()
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
