package metrics

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tonhe/fieldscan/internal/device"
)

// DefaultDriftCapacity bounds the drift records kept for statistics.
const DefaultDriftCapacity = 1000

// DriftRecord is the difference between when a task was scheduled and when
// a worker picked it up.
type DriftRecord struct {
	Frame     device.FrameKey `json:"-"`
	FrameID   string          `json:"frameId"`
	Scheduled time.Time       `json:"scheduled"`
	Actual    time.Time       `json:"actual"`
	Drift     time.Duration   `json:"driftNs"`
}

// DriftStats summarises recent drift in milliseconds.
type DriftStats struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"meanMs"`
	MinMs    float64 `json:"minMs"`
	MaxMs    float64 `json:"maxMs"`
	StdDevMs float64 `json:"stdDevMs"`
}

// DriftRecorder keeps the most recent scheduling drift records.
type DriftRecorder struct {
	records *RingBuffer[DriftRecord]
}

// NewDriftRecorder creates a recorder holding capacity records.
func NewDriftRecorder(capacity int) *DriftRecorder {
	return &DriftRecorder{records: NewRingBuffer[DriftRecord](capacity)}
}

// Record stores one scheduled/actual pair.
func (r *DriftRecorder) Record(frame device.FrameKey, scheduled, actual time.Time) {
	r.records.Add(DriftRecord{
		Frame:     frame,
		FrameID:   frame.String(),
		Scheduled: scheduled,
		Actual:    actual,
		Drift:     actual.Sub(scheduled),
	})
}

// Recent returns up to n of the newest records.
func (r *DriftRecorder) Recent(n int) []DriftRecord {
	return r.records.Recent(n)
}

// Statistics computes count, mean, min, max and population standard
// deviation over the retained records.
func (r *DriftRecorder) Statistics() DriftStats {
	recs := r.records.All()
	if len(recs) == 0 {
		return DriftStats{}
	}
	ms := make([]float64, len(recs))
	for i, rec := range recs {
		ms[i] = float64(rec.Drift) / float64(time.Millisecond)
	}
	mean, std := stat.PopMeanStdDev(ms, nil)
	return DriftStats{
		Count:    len(ms),
		MeanMs:   mean,
		MinMs:    floats.Min(ms),
		MaxMs:    floats.Max(ms),
		StdDevMs: std,
	}
}

// Clear drops every record.
func (r *DriftRecorder) Clear() {
	r.records.Clear()
}
