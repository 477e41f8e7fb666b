package metrics

import (
	"sync"
	"time"
)

// DefaultWindow is the span used for per-minute throughput.
const DefaultWindow = 60 * time.Second

// Window holds event timestamps that fall inside a trailing time span.
// Entries older than the span are pruned lazily on Add and on queries.
type Window struct {
	mu     sync.Mutex
	span   time.Duration
	stamps []time.Time
}

// NewWindow returns an empty window covering span.
func NewWindow(span time.Duration) *Window {
	if span <= 0 {
		span = DefaultWindow
	}
	return &Window{span: span}
}

// Span returns the window length.
func (w *Window) Span() time.Duration { return w.span }

// Add records an event at t.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = append(w.stamps, t)
	w.prune(t)
}

// Count returns the number of events in [now-span, now].
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return countIn(w.stamps, now.Add(-w.span), now)
}

// Snapshot returns a copy of the retained timestamps.
func (w *Window) Snapshot(now time.Time) []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

// prune drops leading entries older than the span. Producers append in
// roughly increasing order so only the head needs checking.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func countIn(stamps []time.Time, from, to time.Time) int {
	n := 0
	for _, t := range stamps {
		if !t.Before(from) && !t.After(to) {
			n++
		}
	}
	return n
}

// CountIn returns how many of stamps fall in [now-span, now].
func CountIn(stamps []time.Time, now time.Time, span time.Duration) int {
	return countIn(stamps, now.Add(-span), now)
}

// PerMinute converts an event count over span into events per minute.
func PerMinute(count int, span time.Duration) float64 {
	if span <= 0 {
		return 0
	}
	return float64(count) / span.Seconds() * 60
}

// SaturationIndex returns ingress/egress*100, or 0 when egress is 0.
func SaturationIndex(ingressTPM, egressTPM float64) float64 {
	if egressTPM == 0 {
		return 0
	}
	return ingressTPM / egressTPM * 100
}
