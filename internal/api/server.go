// Package api serves the scan control and telemetry routes over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/config"
	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/resource"
	"github.com/tonhe/fieldscan/internal/scan"
)

const shutdownTimeout = 5 * time.Second

// PointStore is the stored data point table.
type PointStore interface {
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

// Deps are the components the routes read from. Heartbeat, Resources,
// Store and Config may be nil.
type Deps struct {
	Manager   *scan.Manager
	Heartbeat *heartbeat.Monitor
	Resources *resource.Monitor
	Store     PointStore
	Config    *config.Config
	// LoadDevices supplies the device list when POST /api/scan/start has
	// no body.
	LoadDevices func() ([]device.Config, error)
	// ReadyChecks are added to /ready next to the session check.
	ReadyChecks map[string]healthcheck.Check
	Logger      *zap.Logger
}

// Server wires the gin router, Prometheus registry and health handler.
type Server struct {
	deps     Deps
	logger   *zap.Logger
	router   *gin.Engine
	registry *prometheus.Registry
	health   healthcheck.Handler
}

// NewServer builds the router with every route registered.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:     deps,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   newHealthHandler(deps),
	}
	s.registry.MustRegister(newCollector(deps))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	s.routes(router)
	s.router = router
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/live", gin.WrapH(s.health))
	r.GET("/ready", gin.WrapH(s.health))

	api := r.Group("/api")
	api.GET("/config", s.runtimeConfig)
	api.GET("/devices", s.devices)
	api.GET("/datapoints/counts", s.pointCounts)
	api.DELETE("/datapoints", s.clearPoints)

	sc := api.Group("/scan")
	sc.GET("/status", s.scanStatus)
	sc.POST("/start", s.scanStart)
	sc.POST("/stop", s.scanStop)

	m := api.Group("/metrics")
	m.GET("/system", s.systemHealth)
	m.GET("/devices", s.deviceMetrics)
	m.GET("/queue", s.queueStats)
	m.GET("/frames/drops", s.frameDrops)

	hb := api.Group("/heartbeat")
	hb.GET("/metrics", s.heartbeatCurrent)
	hb.GET("/metrics/history", s.heartbeatHistory)
	hb.GET("/warnings", s.heartbeatWarnings)
	hb.DELETE("/warnings", s.heartbeatClearWarnings)
	hb.GET("/config", s.heartbeatConfig)

	cd := api.Group("/clockdrift")
	cd.GET("/statistics", s.driftStatistics)
	cd.GET("/recent", s.driftRecent)

	dq := api.Group("/dataquality")
	dq.GET("/summary", s.qualitySummary)
	dq.GET("/points", s.qualityPoints)

	api.GET("/resources", s.resources)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
