// Package server exposes message routers over HTTP for `imgprompt serve`.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Server routes POST /v1/<context>/messages to the matching router.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	metrics    *Metrics
}

// New creates a server listening on addr for the given routers.
func New(addr string, routers ...*messaging.Router) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  gin.New(),
		metrics: NewMetrics(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())

	for _, router := range routers {
		s.engine.POST(messaging.MessagePath(router.Name()), s.handleMessage(router))
	}
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleMessage(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var msg messaging.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			s.metrics.RecordMessage(router.Name(), "invalid", "bad_request", time.Since(start))
			c.JSON(http.StatusBadRequest, messaging.Response{OK: false, Error: "malformed message"})
			return
		}

		// Unknown kinds come from the client; keep them out of metric labels.
		kind := string(msg.Type)
		if !router.Handles(msg.Type) {
			kind = "unknown"
		}

		resp, err := router.Dispatch(c.Request.Context(), msg)
		if err != nil {
			status := http.StatusInternalServerError
			outcome := "error"
			if !router.Handles(msg.Type) {
				status, outcome = http.StatusBadRequest, "bad_request"
			}
			var msgErr *messaging.MessagingError
			if errors.As(err, &msgErr) && strings.HasSuffix(msgErr.Reason, "router closed") {
				status, outcome = http.StatusServiceUnavailable, "closed"
			}
			s.metrics.RecordMessage(router.Name(), kind, outcome, time.Since(start))
			c.JSON(status, messaging.Response{OK: false, Error: err.Error()})
			return
		}

		outcome := "ok"
		if !resp.OK {
			outcome = "failed"
		}
		s.metrics.RecordMessage(router.Name(), kind, outcome, time.Since(start))
		for _, r := range resp.Results {
			if r.Degraded {
				s.metrics.RecordImage("degraded")
			} else {
				s.metrics.RecordImage("described")
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
