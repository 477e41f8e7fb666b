package metrics

import (
	"math"
	"testing"
	"time"
)

func TestDriftRecorderStatistics(t *testing.T) {
	r := NewDriftRecorder(10)
	base := time.Now()
	for _, ms := range []int{10, 20, 30, 40} {
		r.Record(testFrame, base, base.Add(time.Duration(ms)*time.Millisecond))
	}

	s := r.Statistics()
	if s.Count != 4 {
		t.Errorf("expected count 4, got %d", s.Count)
	}
	if s.MeanMs != 25 {
		t.Errorf("expected mean 25, got %f", s.MeanMs)
	}
	if s.MinMs != 10 || s.MaxMs != 40 {
		t.Errorf("expected min 10 max 40, got %f %f", s.MinMs, s.MaxMs)
	}
	// population stddev of 10,20,30,40
	if math.Abs(s.StdDevMs-math.Sqrt(125)) > 1e-9 {
		t.Errorf("expected stddev %f, got %f", math.Sqrt(125), s.StdDevMs)
	}
}

func TestDriftRecorderEmpty(t *testing.T) {
	r := NewDriftRecorder(10)
	if s := r.Statistics(); s.Count != 0 {
		t.Errorf("expected empty stats, got %+v", s)
	}
}

func TestDriftRecorderBounded(t *testing.T) {
	r := NewDriftRecorder(3)
	base := time.Now()
	for i := 0; i < 10; i++ {
		r.Record(testFrame, base, base.Add(time.Duration(i)*time.Millisecond))
	}
	recent := r.Recent(-1)
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[2].Drift != 9*time.Millisecond {
		t.Errorf("expected newest drift 9ms, got %v", recent[2].Drift)
	}
	if recent[0].FrameID != testFrame.String() {
		t.Errorf("unexpected frame id %q", recent[0].FrameID)
	}
}
