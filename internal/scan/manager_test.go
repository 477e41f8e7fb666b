package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
)

func newTestManager(client *fakeClient, out *memSink) *Manager {
	return NewManager(client, out, metrics.NewCollector(), metrics.NewDriftRecorder(100), zap.NewNop(), Options{})
}

// TestManagerStartupEmitsOneTask starts one device with a 1s frame and
// expects exactly one task after 50ms.
func TestManagerStartupEmitsOneTask(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	ctx := context.Background()
	if err := m.Start(ctx, []device.Config{testDevice(false, time.Second)}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(ctx)

	time.Sleep(50 * time.Millisecond)
	s := m.QueueStats()
	if s.Enqueued != 1 {
		t.Errorf("expected enqueued 1, got %d", s.Enqueued)
	}
	if s.Depth > 1 {
		t.Errorf("expected depth 0 or 1, got %d", s.Depth)
	}
	if m.Generated() != 1 {
		t.Errorf("expected 1 generated task, got %d", m.Generated())
	}
	if !m.IsRunning() || m.State() != StateRunning {
		t.Errorf("expected running, got %s", m.State())
	}
}

// TestManagerGracefulStop stops immediately after Start and expects no
// further queue growth.
func TestManagerGracefulStop(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(client, &memSink{})
	ctx := context.Background()
	devs := []device.Config{testDevice(false, 20*time.Millisecond, 30*time.Millisecond)}
	if err := m.Start(ctx, devs); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	start := time.Now()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 6*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if m.IsRunning() {
		t.Error("expected not running after Stop")
	}
	if m.State() != StateIdle {
		t.Errorf("expected idle, got %s", m.State())
	}
	if client.closes.Load() != 1 {
		t.Errorf("expected connections closed once, got %d", client.closes.Load())
	}

	first := m.QueueStats()
	time.Sleep(200 * time.Millisecond)
	second := m.QueueStats()
	if second.Enqueued != first.Enqueued {
		t.Errorf("queue grew after stop: %d -> %d", first.Enqueued, second.Enqueued)
	}
}

func TestManagerStopBoundedWithSlowDevice(t *testing.T) {
	client := &fakeClient{delay: 10 * time.Second, stubborn: true}
	m := NewManager(client, nil, nil, nil, nil, Options{
		ReadTimeout:          time.Minute,
		GeneratorStopTimeout: 100 * time.Millisecond,
		WorkerStopTimeout:    100 * time.Millisecond,
	})
	ctx := context.Background()
	if err := m.Start(ctx, []device.Config{testDevice(false, time.Second)}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	m.Stop(ctx)
	if time.Since(start) > 2*time.Second {
		t.Errorf("Stop did not respect its budget: %v", time.Since(start))
	}
}

func TestManagerLifecycleMisuse(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	ctx := context.Background()

	if err := m.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	devs := []device.Config{testDevice(false, time.Second)}
	if err := m.Start(ctx, devs); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Start(ctx, devs); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := m.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning on second stop, got %v", err)
	}
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	bad := testDevice(false, time.Millisecond)
	err := m.Start(context.Background(), []device.Config{bad})
	if !errors.Is(err, device.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if m.IsRunning() {
		t.Error("manager should stay idle after invalid config")
	}
}

func TestManagerRestartCreatesFreshSession(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	ctx := context.Background()
	devs := []device.Config{testDevice(false, time.Second)}

	m.Start(ctx, devs)
	time.Sleep(30 * time.Millisecond)
	m.Stop(ctx)
	firstQuality := m.Quality()

	if err := m.Start(ctx, devs); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	defer m.Stop(ctx)
	time.Sleep(30 * time.Millisecond)

	if m.Quality() == firstQuality {
		t.Error("expected a new quality tracker per session")
	}
	if got := m.QueueStats().Enqueued; got != 1 {
		t.Errorf("expected fresh queue counters, got enqueued %d", got)
	}
}

func TestManagerConcurrentModeQueues(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	ctx := context.Background()
	devs := []device.Config{
		testDevice(true, time.Second, time.Second, time.Second),
		func() device.Config {
			d := testDevice(false, time.Second, time.Second)
			d.Host = "10.0.0.2"
			return d
		}(),
	}
	if err := m.Start(ctx, devs); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(ctx)

	if n := len(m.QueueDetails()); n != 4 {
		t.Errorf("expected 3 frame queues + 1 device queue, got %d", n)
	}
	snap := m.Snapshot()
	if len(snap.Devices) != 2 {
		t.Fatalf("expected 2 devices in snapshot, got %d", len(snap.Devices))
	}
	if snap.Devices[0].Mode != Concurrent || snap.Devices[1].Mode != Sequential {
		t.Errorf("unexpected modes %v %v", snap.Devices[0].Mode, snap.Devices[1].Mode)
	}
}

func TestManagerPublishesTelemetry(t *testing.T) {
	out := &memSink{}
	m := newTestManager(&fakeClient{}, out)
	events := m.Subscribe()
	ctx := context.Background()
	if err := m.Start(ctx, []device.Config{testDevice(false, 20*time.Millisecond)}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop(ctx)

	select {
	case ev := <-events:
		if ev.Failed {
			t.Error("expected successful read event")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	if !eventually(time.Second, func() bool { return out.count() >= 2 }) {
		t.Error("expected batches to reach the sink")
	}
	h := m.SystemHealth()
	if h.IngressTPM == 0 || h.EgressTPM == 0 {
		t.Errorf("expected non-zero throughput, got %+v", h)
	}
	if m.Drift().Statistics().Count == 0 {
		t.Error("expected drift records")
	}
	snap := m.Snapshot()
	fs := snap.Devices[0].Frames[0]
	if fs.Reads == 0 || len(fs.LastValues) != 4 || fs.History.Len() == 0 {
		t.Errorf("unexpected frame stats %+v", fs)
	}
	if m.Quality().Summary().Good != 4 {
		t.Errorf("expected 4 good points, got %+v", m.Quality().Summary())
	}
}

func TestManagerQueryBeforeStart(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	if s := m.QueueStats(); s != (metrics.QueueStats{}) {
		t.Errorf("expected zero stats, got %+v", s)
	}
	if m.DropTimestamps() != nil || m.Quality() != nil || m.Devices() != nil {
		t.Error("expected empty accessors before first Start")
	}
	if snap := m.Snapshot(); snap.State != StateIdle || len(snap.Devices) != 0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

// TestManagerStartCancelledContext rejects a cancelled Start without
// touching the lifecycle, so a later Start still succeeds.
func TestManagerStartCancelledContext(t *testing.T) {
	m := newTestManager(&fakeClient{}, &memSink{})
	devs := []device.Config{testDevice(false, 50*time.Millisecond)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Start(ctx, devs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}

	if err := m.Start(context.Background(), devs); err != nil {
		t.Fatalf("Start() after cancelled start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

// TestManagerStopCancelledContext stops with an already cancelled context
// and expects the manager back at idle and able to start again.
func TestManagerStopCancelledContext(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(client, &memSink{})
	devs := []device.Config{testDevice(false, 20*time.Millisecond)}
	if err := m.Start(context.Background(), devs); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if m.State() != StateIdle || m.IsRunning() {
		t.Fatalf("expected idle after cancelled stop, got %s", m.State())
	}
	if err := m.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning on second stop, got %v", err)
	}

	if err := m.Start(context.Background(), devs); err != nil {
		t.Fatalf("Start() after cancelled stop: %v", err)
	}
	if !m.IsRunning() {
		t.Error("expected running after restart")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
