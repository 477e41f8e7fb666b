package scan

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonhe/fieldscan/internal/device"
)

// Task is one unit of work: read this frame, on this device, now. It is
// created by a Generator and mutated only by the worker that dequeues it.
type Task struct {
	ID           uuid.UUID
	Frame        device.FrameKey
	DeviceName   string
	FrameName    string
	StartAddress int
	Count        int
	Interval     time.Duration

	CreatedAt   time.Time
	DequeuedAt  time.Time
	CompletedAt time.Time
	Completed   bool
	Failed      bool
	Err         string
}

func newTask(dev device.Config, index int, now time.Time) *Task {
	f := dev.Frames[index]
	return &Task{
		ID:           uuid.New(),
		Frame:        dev.FrameKey(index),
		DeviceName:   dev.Name,
		FrameName:    f.Name,
		StartAddress: f.StartAddress,
		Count:        f.Count,
		Interval:     f.Interval,
		CreatedAt:    now,
	}
}

func (t *Task) complete(at time.Time) {
	t.CompletedAt = at
	t.Completed = true
}

func (t *Task) fail(at time.Time, err error) {
	t.CompletedAt = at
	t.Failed = true
	if err != nil {
		t.Err = err.Error()
	}
}

// QueueDuration is the time the task waited in its queue.
func (t *Task) QueueDuration() time.Duration { return t.DequeuedAt.Sub(t.CreatedAt) }

// ResponseTime is the time the device took to answer.
func (t *Task) ResponseTime() time.Duration { return t.CompletedAt.Sub(t.DequeuedAt) }

// TotalInterval is the time from creation to completion.
func (t *Task) TotalInterval() time.Duration { return t.CompletedAt.Sub(t.CreatedAt) }
