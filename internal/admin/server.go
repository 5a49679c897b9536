// Package admin serves the HTTP side of a peer: liveness, readiness,
// prometheus metrics and a JSON snapshot of live sessions.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/raknet/internal/auth"
	"github.com/danmuck/raknet/internal/observability"
	"github.com/danmuck/raknet/internal/peer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Source is what the admin routes report on. *peer.Peer satisfies it.
type Source interface {
	Name() string
	GUID() uint64
	Sessions() []peer.SessionInfo
}

// Options tunes the admin router. A nil Token leaves /sessions open.
type Options struct {
	CorsOrigins []string
	Token       auth.Validator
}

type Server struct {
	Addr    string
	Started time.Time

	source Source
	router *gin.Engine
	ready  func() bool
	token  auth.Validator
}

func New(addr string, source Source, opts Options) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, source.Name()))
	r.Use(observability.RequestMetricsMiddleware(source.Name()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:    addr,
		Started: time.Now(),
		source:  source,
		router:  r,
		ready:   func() bool { return true },
		token:   opts.Token,
	}
	s.registerRoutes()
	return s
}

// SetReady replaces the readiness probe.
func (s *Server) SetReady(fn func() bool) {
	if fn != nil {
		s.ready = fn
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"peer":    s.source.Name(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Started).String(),
			"peer":    s.source.Name(),
			"version": version,
		})
	})

	sessions := []gin.HandlerFunc{}
	if s.token != nil {
		sessions = append(sessions, auth.RequireToken(s.token))
	}
	sessions = append(sessions, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"guid":     s.source.GUID(),
			"sessions": s.source.Sessions(),
		})
	})
	s.router.GET("/sessions", sessions...)
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", s.Addr).Str("peer", s.source.Name()).Msg("admin listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
