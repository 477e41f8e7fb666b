package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/internal/scan"
)

const (
	defaultCount = 100
	maxCount     = 1000
)

type frameStatus struct {
	FrameID        string    `json:"frameId"`
	Name           string    `json:"name"`
	StartAddress   int       `json:"startAddress"`
	Count          int       `json:"count"`
	IntervalMs     int64     `json:"intervalMs"`
	Reads          int64     `json:"reads"`
	Failures       int64     `json:"failures"`
	LastRead       time.Time `json:"lastRead"`
	LastError      string    `json:"lastError,omitempty"`
	LastResponseMs float64   `json:"lastResponseMs"`
	LastValues     []uint16  `json:"lastValues"`
}

type deviceStatus struct {
	DeviceID string        `json:"deviceId"`
	Name     string        `json:"name"`
	Mode     string        `json:"mode"`
	Frames   []frameStatus `json:"frames"`
}

type statusResponse struct {
	State     string             `json:"state"`
	Running   bool               `json:"running"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	Generated int64              `json:"generated"`
	Queue     metrics.QueueStats `json:"queue"`
	Devices   []deviceStatus     `json:"devices"`
}

type startRequest struct {
	Devices []device.Config `json:"devices"`
}

func (s *Server) abort(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// count parses the optional ?count= query parameter.
func count(c *gin.Context) (int, error) {
	raw := c.Query("count")
	if raw == "" {
		return defaultCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive integer, got %q", raw)
	}
	if n > maxCount {
		n = maxCount
	}
	return n, nil
}

func (s *Server) scanStatus(c *gin.Context) {
	m := s.deps.Manager
	snap := m.Snapshot()
	resp := statusResponse{
		State:     snap.State,
		Running:   m.IsRunning(),
		Generated: m.Generated(),
		Queue:     snap.Queue,
		Devices:   make([]deviceStatus, 0, len(snap.Devices)),
	}
	if !snap.StartedAt.IsZero() {
		resp.StartedAt = &snap.StartedAt
	}
	for _, d := range snap.Devices {
		ds := deviceStatus{DeviceID: d.Key.String(), Name: d.Name, Mode: d.Mode.String()}
		for _, f := range d.Frames {
			ds.Frames = append(ds.Frames, frameStatus{
				FrameID:        f.Key.String(),
				Name:           f.Name,
				StartAddress:   f.StartAddress,
				Count:          f.Count,
				IntervalMs:     f.Interval.Milliseconds(),
				Reads:          f.Reads,
				Failures:       f.Failures,
				LastRead:       f.LastRead,
				LastError:      f.LastError,
				LastResponseMs: float64(f.LastResponse) / float64(time.Millisecond),
				LastValues:     f.LastValues,
			})
		}
		resp.Devices = append(resp.Devices, ds)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) scanStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abort(c, http.StatusBadRequest, err)
			return
		}
	}

	devs := req.Devices
	if len(devs) == 0 {
		if s.deps.LoadDevices == nil {
			s.abort(c, http.StatusBadRequest, errors.New("no devices given"))
			return
		}
		loaded, err := s.deps.LoadDevices()
		if err != nil {
			s.abort(c, http.StatusInternalServerError, fmt.Errorf("loading devices: %w", err))
			return
		}
		devs = loaded
	} else {
		device.ApplyDefaults(devs)
	}

	err := s.deps.Manager.Start(c.Request.Context(), devs)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"state": s.deps.Manager.State(), "devices": len(devs)})
	case errors.Is(err, scan.ErrAlreadyRunning):
		s.abort(c, http.StatusConflict, err)
	case errors.Is(err, device.ErrInvalidConfig):
		s.abort(c, http.StatusBadRequest, err)
	default:
		s.abort(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) scanStop(c *gin.Context) {
	err := s.deps.Manager.Stop(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"state": s.deps.Manager.State()})
	case errors.Is(err, scan.ErrNotRunning):
		s.abort(c, http.StatusConflict, err)
	default:
		s.abort(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) systemHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Manager.SystemHealth())
}

func (s *Server) deviceMetrics(c *gin.Context) {
	n, err := count(c)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Manager.Collector().RecentDeviceMetrics(n))
}

func (s *Server) queueStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total":  s.deps.Manager.QueueStats(),
		"queues": s.deps.Manager.QueueDetails(),
	})
}

func (s *Server) frameDrops(c *gin.Context) {
	drops := s.deps.Manager.Collector().AllFrameDrops()
	sort.Slice(drops, func(i, j int) bool { return drops[i].FrameID < drops[j].FrameID })
	c.JSON(http.StatusOK, drops)
}

func (s *Server) heartbeatEnabled(c *gin.Context) bool {
	if s.deps.Heartbeat == nil {
		s.abort(c, http.StatusNotFound, errors.New("heartbeat monitor disabled"))
		return false
	}
	return true
}

func (s *Server) heartbeatCurrent(c *gin.Context) {
	if !s.heartbeatEnabled(c) {
		return
	}
	snap, ok := s.deps.Heartbeat.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"healthy": true, "ticks": 0})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) heartbeatHistory(c *gin.Context) {
	if !s.heartbeatEnabled(c) {
		return
	}
	c.JSON(http.StatusOK, s.deps.Heartbeat.History())
}

func (s *Server) heartbeatWarnings(c *gin.Context) {
	if !s.heartbeatEnabled(c) {
		return
	}
	c.JSON(http.StatusOK, s.deps.Heartbeat.Warnings())
}

func (s *Server) heartbeatClearWarnings(c *gin.Context) {
	if !s.heartbeatEnabled(c) {
		return
	}
	s.deps.Heartbeat.ClearWarnings()
	c.Status(http.StatusNoContent)
}

func (s *Server) heartbeatConfig(c *gin.Context) {
	if !s.heartbeatEnabled(c) {
		return
	}
	c.JSON(http.StatusOK, s.deps.Heartbeat.Config())
}

func (s *Server) driftStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Manager.Drift().Statistics())
}

func (s *Server) driftRecent(c *gin.Context) {
	n, err := count(c)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Manager.Drift().Recent(n))
}

func (s *Server) qualitySummary(c *gin.Context) {
	q := s.deps.Manager.Quality()
	if q == nil {
		c.JSON(http.StatusOK, quality.Summary{})
		return
	}
	c.JSON(http.StatusOK, q.Summary())
}

func (s *Server) qualityPoints(c *gin.Context) {
	q := s.deps.Manager.Quality()
	if q == nil {
		c.JSON(http.StatusOK, []quality.State{})
		return
	}
	filter := c.Query("quality")
	points := q.All()
	if filter == "" {
		c.JSON(http.StatusOK, points)
		return
	}
	out := make([]quality.State, 0, len(points))
	for _, p := range points {
		if strings.EqualFold(p.Quality.String(), filter) {
			out = append(out, p)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) resources(c *gin.Context) {
	if s.deps.Resources == nil {
		s.abort(c, http.StatusNotFound, errors.New("resource monitor disabled"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current": s.deps.Resources.Current(),
		"history": s.deps.Resources.History(),
	})
}

type configResponse struct {
	Theme         string `json:"theme"`
	LogLevel      string `json:"logLevel"`
	DevicesDir    string `json:"devicesDir"`
	ReadTimeoutMs int64  `json:"readTimeoutMs"`
	QueueCapacity int    `json:"queueCapacity"`
	Mock          bool   `json:"mock"`
	Listen        string `json:"listen"`
	Storage       struct {
		Enabled         bool   `json:"enabled"`
		Path            string `json:"path"`
		FlushIntervalMs int64  `json:"flushIntervalMs"`
		BatchSize       int    `json:"batchSize"`
	} `json:"storage"`
	ResourceIntervalMs int64 `json:"resourceIntervalMs"`
	HeartbeatEnabled   bool  `json:"heartbeatEnabled"`
}

func (s *Server) runtimeConfig(c *gin.Context) {
	cfg := s.deps.Config
	if cfg == nil {
		s.abort(c, http.StatusNotFound, errors.New("no runtime configuration"))
		return
	}
	resp := configResponse{
		Theme:              cfg.Theme,
		LogLevel:           cfg.LogLevel,
		DevicesDir:         cfg.DevicesDir,
		ReadTimeoutMs:      cfg.ReadTimeout.Milliseconds(),
		QueueCapacity:      cfg.QueueCapacity,
		Mock:               cfg.Mock,
		Listen:             cfg.HTTP.Listen,
		ResourceIntervalMs: cfg.Resource.Interval.Milliseconds(),
		HeartbeatEnabled:   s.deps.Heartbeat != nil,
	}
	resp.Storage.Enabled = cfg.Storage.Enabled
	resp.Storage.Path = cfg.Storage.Path
	resp.Storage.FlushIntervalMs = cfg.Storage.FlushInterval.Milliseconds()
	resp.Storage.BatchSize = cfg.Storage.BatchSize
	c.JSON(http.StatusOK, resp)
}

func (s *Server) devices(c *gin.Context) {
	devs := s.deps.Manager.Devices()
	if devs == nil {
		devs = []device.Config{}
	}
	c.JSON(http.StatusOK, devs)
}

func (s *Server) storeEnabled(c *gin.Context) bool {
	if s.deps.Store == nil {
		s.abort(c, http.StatusNotFound, errors.New("storage disabled"))
		return false
	}
	return true
}

func (s *Server) pointCounts(c *gin.Context) {
	if !s.storeEnabled(c) {
		return
	}
	n, err := s.deps.Store.Count(c.Request.Context())
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

func (s *Server) clearPoints(c *gin.Context) {
	if !s.storeEnabled(c) {
		return
	}
	n, err := s.deps.Store.Clear(c.Request.Context())
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("data points cleared", zap.Int64("removed", n))
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
