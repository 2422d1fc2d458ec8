// Package api exposes the pipeline over HTTP. Handlers stay thin; all
// behavior lives in the injected components.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/inboxtriage/internal/learning"
	"github.com/inboxtriage/internal/pipeline"
	"github.com/inboxtriage/internal/scheduler"
	"github.com/inboxtriage/internal/store"
	"github.com/inboxtriage/internal/tracking"
)

// Server serves the HTTP API over the injected components.
type Server struct {
	echo     *echo.Echo
	addr     string
	store    store.Store
	pipeline *pipeline.Pipeline
	tracker  *tracking.Tracker
	sched    *scheduler.Scheduler
	learner  *learning.Learner
}

func NewServer(host string, port int, st store.Store, p *pipeline.Pipeline,
	tr *tracking.Tracker, sched *scheduler.Scheduler, l *learning.Learner) *Server {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	s := &Server{
		echo:     e,
		addr:     fmt.Sprintf("%s:%d", host, port),
		store:    st,
		pipeline: p,
		tracker:  tr,
		sched:    sched,
		learner:  l,
	}
	s.routes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	})
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/messages/process", s.processMessage)
	v1.POST("/messages/batch", s.processBatch)
	v1.GET("/messages", s.listMessages)
	v1.GET("/messages/:id/similar", s.similarMessages)
	v1.POST("/interactions/track", s.trackInteraction)
	v1.GET("/queue/status", s.queueStatus)
	v1.POST("/learning/run", s.runLearning)
}

// Start serves until ctx is cancelled, then shuts down gracefully and lets
// queued analysis drain.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info().Str("addr", s.addr).Msg("api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.sched.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown proceeded with jobs still queued")
	}
	return s.echo.Shutdown(shutdownCtx)
}
