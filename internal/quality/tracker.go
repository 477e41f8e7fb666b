// Package quality tracks the freshness of every polled register.
package quality

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
)

// DefaultSweepInterval is how often Run checks for stale points.
const DefaultSweepInterval = time.Second

// Quality is the freshness state of a data point.
type Quality int

const (
	// Uncertain is the state of a registered point that has not yet been
	// read successfully.
	Uncertain Quality = iota
	Good
	Stale
)

func (q Quality) String() string {
	switch q {
	case Good:
		return "Good"
	case Stale:
		return "Stale"
	default:
		return "Uncertain"
	}
}

// MarshalText renders the quality by name.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// State is the tracked freshness of one register.
type State struct {
	Point       device.PointKey `json:"-"`
	PointID     string          `json:"pointId"`
	Quality     Quality         `json:"quality"`
	Value       uint16          `json:"value"`
	LastSuccess time.Time       `json:"lastSuccess"`
	StaleAfter  time.Duration   `json:"staleAfterNs"`
}

// Summary counts points by quality.
type Summary struct {
	Total     int `json:"total"`
	Good      int `json:"good"`
	Stale     int `json:"stale"`
	Uncertain int `json:"uncertain"`
}

// Tracker holds the quality state of every point seen in a session.
type Tracker struct {
	mu     sync.RWMutex
	points map[device.PointKey]*State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{points: make(map[device.PointKey]*State)}
}

// Register adds a point in the Uncertain state if it is not yet tracked.
func (t *Tracker) Register(point device.PointKey, interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.points[point]; ok {
		return
	}
	t.points[point] = &State{
		Point:      point,
		PointID:    point.String(),
		Quality:    Uncertain,
		StaleAfter: 2 * interval,
	}
}

// Update records a successful read of point.
func (t *Tracker) Update(point device.PointKey, value uint16, interval time.Duration) {
	t.UpdateAt(point, value, interval, time.Now())
}

// UpdateAt records a successful read of point at ts. The staleness
// threshold is twice the owning frame's interval.
func (t *Tracker) UpdateAt(point device.PointKey, value uint16, interval time.Duration, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.points[point]
	if !ok {
		s = &State{Point: point, PointID: point.String()}
		t.points[point] = s
	}
	s.Quality = Good
	s.Value = value
	s.LastSuccess = ts
	s.StaleAfter = 2 * interval
}

// Sweep marks points whose last read is too old as Stale.
func (t *Tracker) Sweep() int {
	return t.SweepAt(time.Now())
}

// SweepAt marks Good points older than their threshold at now as Stale and
// returns how many changed. Values and timestamps are kept.
func (t *Tracker) SweepAt(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := 0
	for _, s := range t.points {
		if s.Quality != Good {
			continue
		}
		if now.Sub(s.LastSuccess) > s.StaleAfter {
			s.Quality = Stale
			changed++
		}
	}
	return changed
}

// Run sweeps every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.SweepAt(now)
		}
	}
}

// Get returns a copy of the state of point.
func (t *Tracker) Get(point device.PointKey) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.points[point]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// All returns copies of every tracked state ordered by point id.
func (t *Tracker) All() []State {
	t.mu.RLock()
	out := make([]State, 0, len(t.points))
	for _, s := range t.points {
		out = append(out, *s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Point, out[j].Point
		if a.Device != b.Device {
			return a.Device.String() < b.Device.String()
		}
		return a.Address < b.Address
	})
	return out
}

// Summary counts points per quality.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sum := Summary{Total: len(t.points)}
	for _, s := range t.points {
		switch s.Quality {
		case Good:
			sum.Good++
		case Stale:
			sum.Stale++
		default:
			sum.Uncertain++
		}
	}
	return sum
}
