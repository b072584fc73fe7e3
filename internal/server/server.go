package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"xoranyx-bot/internal/utils"
)

const shutdownTimeout = 5 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Config struct {
	Addr string
	Env  string
	// MetricsAllowlist limits /metrics to these subnets. Empty allows all.
	MetricsAllowlist []*net.IPNet
}

// Server exposes /healthz and /metrics for operators.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func New(cfg Config, gatherer prometheus.Gatherer, checks map[string]Check, logger *zap.Logger) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		result := gin.H{}
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, result)
	})
	router.GET("/metrics",
		allowFrom(cfg.MetricsAllowlist, logger),
		gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
	)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func allowFrom(allowed []*net.IPNet, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowed) == 0 || utils.IsAllowedIP(c.ClientIP(), allowed) {
			c.Next()
			return
		}
		logger.Warn("Rejected metrics request", zap.String("ip", c.ClientIP()))
		c.AbortWithStatus(http.StatusForbidden)
	}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
