package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/protocol"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/internal/sink"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("scan already running")
	// ErrNotRunning is returned by Stop when no session is active.
	ErrNotRunning = errors.New("scan not running")
)

const (
	eventStart   = "start"
	eventStop    = "stop"
	eventStopped = "stopped"

	historySize = 120
)

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	QueueCapacity        int
	ReadTimeout          time.Duration
	SweepInterval        time.Duration
	GeneratorStopTimeout time.Duration
	WorkerStopTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = protocol.DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = quality.DefaultSweepInterval
	}
	if o.GeneratorStopTimeout <= 0 {
		o.GeneratorStopTimeout = 2 * time.Second
	}
	if o.WorkerStopTimeout <= 0 {
		o.WorkerStopTimeout = 3 * time.Second
	}
	return o
}

// session is everything owned by one Start/Stop cycle.
type session struct {
	devices    []device.Config
	startedAt  time.Time
	cancel     context.CancelFunc
	queues     []*Queue
	generators []*Generator
	workers    []*Worker
	quality    *quality.Tracker

	genWG   sync.WaitGroup
	workWG  sync.WaitGroup
	sweepWG sync.WaitGroup

	mu     sync.RWMutex
	frames map[device.FrameKey]*FrameStats
}

// Manager orchestrates monitoring sessions: Idle, Running, Stopping, Idle.
type Manager struct {
	opts      Options
	client    protocol.Client
	sink      sink.Sink
	collector *metrics.Collector
	drift     *metrics.DriftRecorder
	logger    *zap.Logger
	machine   *fsm.FSM

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	sess        *session
	subscribers []chan Event
}

// NewManager creates an idle manager. sink may be nil.
func NewManager(client protocol.Client, out sink.Sink, collector *metrics.Collector, drift *metrics.DriftRecorder, logger *zap.Logger, opts Options) *Manager {
	if out == nil {
		out = sink.Discard{}
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if drift == nil {
		drift = metrics.NewDriftRecorder(metrics.DefaultDriftCapacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		opts:      opts.withDefaults(),
		client:    client,
		sink:      out,
		collector: collector,
		drift:     drift,
		logger:    logger,
	}
	m.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopping},
			{Name: eventStopped, Src: []string{StateStopping}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debug("scan manager state change", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	return m
}

// State returns the lifecycle state.
func (m *Manager) State() string { return m.machine.Current() }

// IsRunning reports whether a session is active.
func (m *Manager) IsRunning() bool { return m.machine.Current() == StateRunning }

// Start validates devices and launches a new session. It returns
// ErrAlreadyRunning if a session is active.
func (m *Manager) Start(ctx context.Context, devices []device.Config) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.machine.Is(StateIdle) {
		return ErrAlreadyRunning
	}
	if err := device.Validate(devices); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Transitions run on a fresh context. looplab/fsm leaves a transition
	// pending when its context is cancelled, which blocks every later event.
	if err := m.machine.Event(context.Background(), eventStart); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}

	s := m.build(cloneDevices(devices))
	sessCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()

	for _, w := range s.workers {
		s.workWG.Add(1)
		go func(w *Worker) {
			defer s.workWG.Done()
			w.Run(sessCtx)
		}(w)
	}
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		s.quality.Run(sessCtx, m.opts.SweepInterval)
	}()
	for _, g := range s.generators {
		s.genWG.Add(1)
		go func(g *Generator) {
			defer s.genWG.Done()
			g.Run(sessCtx)
		}(g)
	}

	m.logger.Info("scan started",
		zap.Int("devices", len(s.devices)),
		zap.Int("queues", len(s.queues)),
		zap.Int("generators", len(s.generators)))
	return nil
}

// build creates the queues, workers and generators of a session.
func (m *Manager) build(devices []device.Config) *session {
	s := &session{
		devices:   devices,
		startedAt: time.Now(),
		quality:   quality.NewTracker(),
		frames:    make(map[device.FrameKey]*FrameStats),
	}
	deps := workerDeps{
		client:      m.client,
		collector:   m.collector,
		drift:       m.drift,
		quality:     s.quality,
		sink:        m.sink,
		logger:      m.logger,
		readTimeout: m.opts.ReadTimeout,
		observe:     m.observer(s),
	}

	for _, dev := range devices {
		var queues []*Queue
		if dev.AllowConcurrentFrameReads {
			for i := range dev.Frames {
				q := NewQueue(dev.FrameKey(i).String(), m.opts.QueueCapacity)
				queues = append(queues, q)
				s.generators = append(s.generators, NewGenerator(dev, i, q, m.collector))
			}
		} else {
			q := NewQueue(dev.Key().String(), m.opts.QueueCapacity)
			queues = append(queues, q)
			for i := range dev.Frames {
				s.generators = append(s.generators, NewGenerator(dev, i, q, m.collector))
			}
		}
		s.queues = append(s.queues, queues...)
		s.workers = append(s.workers, newWorker(dev, queues, deps))

		for i, f := range dev.Frames {
			s.frames[dev.FrameKey(i)] = &FrameStats{
				Key:          dev.FrameKey(i),
				Name:         f.Name,
				StartAddress: f.StartAddress,
				Count:        f.Count,
				Interval:     f.Interval,
				History:      metrics.NewRingBuffer[float64](historySize),
			}
			for a := 0; a < f.Count; a++ {
				s.quality.Register(device.PointKey{Device: dev.Key(), Address: f.StartAddress + a}, f.Interval)
			}
		}
	}
	return s
}

// observer returns the hook workers call after each task.
func (m *Manager) observer(s *session) func(*Task, protocol.ReadResult) {
	return func(t *Task, res protocol.ReadResult) {
		s.mu.Lock()
		fs, ok := s.frames[t.Frame]
		if ok {
			fs.Reads++
			fs.LastRead = t.CompletedAt
			if t.Failed {
				fs.Failures++
				fs.LastError = t.Err
			} else {
				fs.LastError = ""
				fs.LastValues = res.Values
				fs.LastResponse = t.ResponseTime()
				fs.History.Add(float64(fs.LastResponse) / float64(time.Millisecond))
			}
		}
		s.mu.Unlock()
		m.notify(Event{Frame: t.Frame, Failed: t.Failed})
	}
}

// Stop cancels the session and waits, phase by phase, for generators,
// workers and the staleness sweep to exit. A phase that overruns its
// timeout is abandoned with a warning. Connections held by the protocol
// client are closed so the next Start reconnects. Stop returns
// ErrNotRunning when no session is active. A cancelled ctx cuts the waits
// short but still returns the manager to idle.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.machine.Is(StateRunning) {
		return ErrNotRunning
	}
	if err := m.machine.Event(context.Background(), eventStop); err != nil {
		return fmt.Errorf("stop scan: %w", err)
	}

	m.mu.RLock()
	s := m.sess
	m.mu.RUnlock()

	s.cancel()
	if !waitTimeout(ctx, &s.genWG, m.opts.GeneratorStopTimeout) {
		m.logger.Warn("generators did not stop in time", zap.Duration("timeout", m.opts.GeneratorStopTimeout))
	}
	if !waitTimeout(ctx, &s.workWG, m.opts.WorkerStopTimeout) {
		m.logger.Warn("workers did not stop in time", zap.Duration("timeout", m.opts.WorkerStopTimeout))
	}
	if !waitTimeout(ctx, &s.sweepWG, time.Second) {
		m.logger.Warn("staleness sweep did not stop in time")
	}

	if err := m.client.Close(); err != nil {
		m.logger.Warn("closing device connections", zap.Error(err))
	}

	if err := m.machine.Event(context.Background(), eventStopped); err != nil {
		return fmt.Errorf("stop scan: %w", err)
	}
	m.logger.Info("scan stopped", zap.Int64("enqueued", m.QueueStats().Enqueued))
	return nil
}

// waitTimeout waits for wg up to d or until ctx is done.
func waitTimeout(ctx context.Context, wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) session() *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

// QueueStats sums the counters of every queue of the current or last
// session. It is zero before the first Start.
func (m *Manager) QueueStats() metrics.QueueStats {
	var total metrics.QueueStats
	s := m.session()
	if s == nil {
		return total
	}
	for _, q := range s.queues {
		total = total.Add(q.Stats())
	}
	return total
}

// QueueDetails returns per-queue counters keyed by queue name.
func (m *Manager) QueueDetails() map[string]metrics.QueueStats {
	out := make(map[string]metrics.QueueStats)
	s := m.session()
	if s == nil {
		return out
	}
	for _, q := range s.queues {
		out[q.Name()] = q.Stats()
	}
	return out
}

// DropTimestamps returns the union of drop timestamps across queues.
func (m *Manager) DropTimestamps() []time.Time {
	s := m.session()
	if s == nil {
		return nil
	}
	var all []time.Time
	for _, q := range s.queues {
		all = append(all, q.DropTimestamps()...)
	}
	return all
}

// SystemHealth combines collector throughput with queue counters.
func (m *Manager) SystemHealth() metrics.SystemHealth {
	return m.collector.SystemHealth(m.QueueStats(), m.DropTimestamps())
}

// Collector returns the shared metrics collector.
func (m *Manager) Collector() *metrics.Collector { return m.collector }

// Drift returns the clock drift recorder.
func (m *Manager) Drift() *metrics.DriftRecorder { return m.drift }

// Quality returns the data quality tracker of the current or last
// session, or nil before the first Start.
func (m *Manager) Quality() *quality.Tracker {
	s := m.session()
	if s == nil {
		return nil
	}
	return s.quality
}

// Devices returns the devices of the current or last session.
func (m *Manager) Devices() []device.Config {
	s := m.session()
	if s == nil {
		return nil
	}
	return cloneDevices(s.devices)
}

// StartedAt returns when the current or last session started.
func (m *Manager) StartedAt() time.Time {
	s := m.session()
	if s == nil {
		return time.Time{}
	}
	return s.startedAt
}

// Generated returns how many tasks the session's generators created.
func (m *Manager) Generated() int64 {
	s := m.session()
	if s == nil {
		return 0
	}
	var n int64
	for _, g := range s.generators {
		n += g.Generated()
	}
	return n
}

// Snapshot returns a point-in-time view of every device and frame.
func (m *Manager) Snapshot() *Snapshot {
	snap := &Snapshot{State: m.State(), Queue: m.QueueStats()}
	s := m.session()
	if s == nil {
		return snap
	}
	snap.StartedAt = s.startedAt

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, dev := range s.devices {
		ds := DeviceStats{Name: dev.Name, Key: dev.Key(), Mode: s.workers[i].Mode()}
		for j := range dev.Frames {
			if fs, ok := s.frames[dev.FrameKey(j)]; ok {
				ds.Frames = append(ds.Frames, *fs)
			}
		}
		snap.Devices = append(snap.Devices, ds)
	}
	return snap
}

// Subscribe returns a channel that receives an event after executed
// tasks. Events are dropped when the subscriber is behind.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	subs := m.subscribers
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func cloneDevices(devs []device.Config) []device.Config {
	out := make([]device.Config, len(devs))
	for i, d := range devs {
		d.Frames = append([]device.Frame(nil), d.Frames...)
		out[i] = d
	}
	return out
}
