package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/resource"
	"github.com/tonhe/fieldscan/internal/scan"
)

const namespace = "fieldscan"

// collector exposes the telemetry accessors as Prometheus metrics. Values
// are read at scrape time.
type collector struct {
	manager   *scan.Manager
	heartbeat *heartbeat.Monitor
	resources *resource.Monitor

	running        *prometheus.Desc
	ingress        *prometheus.Desc
	egress         *prometheus.Desc
	droppedRate    *prometheus.Desc
	saturation     *prometheus.Desc
	created        *prometheus.Desc
	completed      *prometheus.Desc
	dropped        *prometheus.Desc
	queueDepth     *prometheus.Desc
	frameDrops     *prometheus.Desc
	driftMean      *prometheus.Desc
	driftMax       *prometheus.Desc
	qualityPoints  *prometheus.Desc
	hbLatency      *prometheus.Desc
	hbClockDrift   *prometheus.Desc
	hbHealthy      *prometheus.Desc
	hbWarnings     *prometheus.Desc
	procCPU        *prometheus.Desc
	procMemory     *prometheus.Desc
	procGoroutines *prometheus.Desc
}

func newCollector(deps Deps) *collector {
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &collector{
		manager:   deps.Manager,
		heartbeat: deps.Heartbeat,
		resources: deps.Resources,

		running:        desc("scan", "running", "1 while a scan session is active."),
		ingress:        desc("scan", "ingress_tasks_per_minute", "Tasks created over the rolling window."),
		egress:         desc("scan", "egress_tasks_per_minute", "Tasks completed over the rolling window."),
		droppedRate:    desc("scan", "dropped_tasks_per_minute", "Tasks rejected over the rolling window."),
		saturation:     desc("scan", "saturation_index", "Ingress as a percentage of egress."),
		created:        desc("scan", "tasks_created_total", "Tasks created since process start."),
		completed:      desc("scan", "tasks_completed_total", "Tasks completed since process start."),
		dropped:        desc("scan", "tasks_dropped_total", "Tasks rejected since process start."),
		queueDepth:     desc("queue", "depth", "Tasks waiting per queue.", "queue"),
		frameDrops:     desc("frame", "drops_total", "Rejected enqueues per frame.", "frame"),
		driftMean:      desc("clockdrift", "mean_ms", "Mean scheduling drift of recent tasks."),
		driftMax:       desc("clockdrift", "max_ms", "Maximum scheduling drift of recent tasks."),
		qualityPoints:  desc("dataquality", "points", "Tracked points by quality.", "quality"),
		hbLatency:      desc("heartbeat", "latency_ms", "Tick overrun beyond the expected interval."),
		hbClockDrift:   desc("heartbeat", "clock_drift_ms", "Divergence between monotonic and wall time."),
		hbHealthy:      desc("heartbeat", "healthy", "1 when the last tick was on time."),
		hbWarnings:     desc("heartbeat", "warnings", "Retained heartbeat warnings."),
		procCPU:        desc("process", "cpu_percent", "Process CPU usage."),
		procMemory:     desc("process", "memory_mb", "Process resident memory."),
		procGoroutines: desc("process", "goroutines", "Running goroutines."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.running, c.ingress, c.egress, c.droppedRate, c.saturation,
		c.created, c.completed, c.dropped, c.queueDepth, c.frameDrops,
		c.driftMean, c.driftMax, c.qualityPoints,
		c.hbLatency, c.hbClockDrift, c.hbHealthy, c.hbWarnings,
		c.procCPU, c.procMemory, c.procGoroutines,
	} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if c.manager != nil {
		gauge(c.running, boolValue(c.manager.IsRunning()))

		h := c.manager.SystemHealth()
		gauge(c.ingress, h.IngressTPM)
		gauge(c.egress, h.EgressTPM)
		gauge(c.droppedRate, h.DroppedTPM)
		gauge(c.saturation, h.SaturationIndex)
		counter(c.created, float64(h.TotalCreated))
		counter(c.completed, float64(h.TotalCompleted))
		counter(c.dropped, float64(h.TotalDropped))

		for name, q := range c.manager.QueueDetails() {
			gauge(c.queueDepth, float64(q.Depth), name)
		}
		for _, fd := range c.manager.Collector().AllFrameDrops() {
			counter(c.frameDrops, float64(fd.Dropped), fd.FrameID)
		}

		ds := c.manager.Drift().Statistics()
		gauge(c.driftMean, ds.MeanMs)
		gauge(c.driftMax, ds.MaxMs)

		if q := c.manager.Quality(); q != nil {
			sum := q.Summary()
			gauge(c.qualityPoints, float64(sum.Good), "good")
			gauge(c.qualityPoints, float64(sum.Stale), "stale")
			gauge(c.qualityPoints, float64(sum.Uncertain), "uncertain")
		}
	}

	if c.heartbeat != nil {
		if snap, ok := c.heartbeat.Current(); ok {
			gauge(c.hbLatency, float64(snap.LatencyMs))
			gauge(c.hbClockDrift, float64(snap.ClockDriftMs))
			gauge(c.hbHealthy, boolValue(snap.Healthy))
		}
		gauge(c.hbWarnings, float64(len(c.heartbeat.Warnings())))
	}

	if c.resources != nil {
		s := c.resources.Current()
		gauge(c.procCPU, s.CPUPercent)
		gauge(c.procMemory, s.MemoryMB)
		gauge(c.procGoroutines, float64(s.Goroutines))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
