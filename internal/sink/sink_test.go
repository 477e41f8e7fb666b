package sink

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type memRepo struct {
	mu     sync.Mutex
	points []Point
	writes int
	err    error
}

func (m *memRepo) WritePoints(_ context.Context, pts []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.points = append(m.points, pts...)
	return nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func testBatch(n int) Batch {
	return Batch{
		Timestamp:    time.Now(),
		DeviceName:   "plc1",
		FrameName:    "status",
		StartAddress: 40,
		Values:       make([]uint16, n),
	}
}

func TestBatchPoints(t *testing.T) {
	b := testBatch(2)
	b.Values = []uint16{7, 9}
	pts := b.Points()
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[1].TagName != "plc1status00041" {
		t.Errorf("unexpected tag %q", pts[1].TagName)
	}
	if pts[1].Value != 9 {
		t.Errorf("expected value 9, got %f", pts[1].Value)
	}
}

func TestBufferSubmitNeverBlocks(t *testing.T) {
	b := NewBuffer(&memRepo{}, time.Hour, 0, 2, nil)
	for i := 0; i < 5; i++ {
		b.Submit(testBatch(1))
	}
	s := b.Stats()
	if s.Submitted != 2 || s.Dropped != 3 {
		t.Errorf("expected 2 submitted 3 dropped, got %+v", s)
	}
}

func TestBufferFlushesOnInterval(t *testing.T) {
	repo := &memRepo{}
	b := NewBuffer(repo, 20*time.Millisecond, 0, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(testBatch(3))
	deadline := time.Now().Add(time.Second)
	for repo.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if repo.count() != 3 {
		t.Errorf("expected 3 points written, got %d", repo.count())
	}
}

func TestBufferFlushesOnBatchSize(t *testing.T) {
	repo := &memRepo{}
	b := NewBuffer(repo, time.Hour, 4, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(testBatch(2))
	b.Submit(testBatch(2))
	deadline := time.Now().Add(time.Second)
	for repo.count() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if repo.count() != 4 {
		t.Errorf("expected batch-size flush of 4 points, got %d", repo.count())
	}
}

func TestBufferFinalFlushOnCancel(t *testing.T) {
	repo := &memRepo{}
	b := NewBuffer(repo, time.Hour, 0, 0, nil)
	b.Submit(testBatch(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	if repo.count() != 5 {
		t.Errorf("expected pending points flushed on shutdown, got %d", repo.count())
	}
	if b.Stats().Written != 5 {
		t.Errorf("expected written 5, got %d", b.Stats().Written)
	}
}

func TestBufferCountsFailures(t *testing.T) {
	repo := &memRepo{err: errors.New("disk full")}
	b := NewBuffer(repo, time.Hour, 0, 0, nil)
	b.Submit(testBatch(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	if b.Stats().Failed != 2 {
		t.Errorf("expected 2 failed points, got %d", b.Stats().Failed)
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "points.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer repo.Close()

	// more rows than fit in one INSERT
	b := testBatch(600)
	for i := range b.Values {
		b.Values[i] = uint16(i)
	}
	ctx := context.Background()
	if err := repo.WritePoints(ctx, b.Points()); err != nil {
		t.Fatalf("WritePoints() error: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 600 {
		t.Errorf("expected 600 rows, got %d", n)
	}

	pts, err := repo.Latest(ctx, TagName("plc1", "status", 45), 1)
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if len(pts) != 1 || pts[0].Value != 5 {
		t.Errorf("expected value 5 for register 45, got %v", pts)
	}
}

func TestSQLiteRepositoryClear(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "points.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.WritePoints(ctx, testBatch(10).Points()); err != nil {
		t.Fatalf("WritePoints() error: %v", err)
	}

	removed, err := repo.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if removed != 10 {
		t.Errorf("expected 10 rows removed, got %d", removed)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Errorf("expected empty table after Clear, got %d", n)
	}

	// Writes keep working after a clear.
	if err := repo.WritePoints(ctx, testBatch(3).Points()); err != nil {
		t.Fatalf("WritePoints() after Clear: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
}

func TestDiscard(t *testing.T) {
	var s Sink = Discard{}
	if !s.Submit(testBatch(1)) {
		t.Error("Discard should accept every batch")
	}
}
