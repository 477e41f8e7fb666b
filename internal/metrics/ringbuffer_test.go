package metrics

import "testing"

func TestRingBufferAdd(t *testing.T) {
	rb := NewRingBuffer[int](5)
	for i := 0; i < 3; i++ {
		rb.Add(i)
	}
	if rb.Len() != 3 {
		t.Errorf("expected len 3, got %d", rb.Len())
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 5; i++ {
		rb.Add(i)
	}
	if rb.Len() != 3 {
		t.Errorf("expected len 3, got %d", rb.Len())
	}
	items := rb.All()
	if items[0] != 2 {
		t.Errorf("expected oldest item 2, got %d", items[0])
	}
	if items[2] != 4 {
		t.Errorf("expected newest item 4, got %d", items[2])
	}
}

func TestRingBufferRecent(t *testing.T) {
	rb := NewRingBuffer[int](4)
	for i := 0; i < 6; i++ {
		rb.Add(i)
	}
	got := rb.Recent(2)
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("expected [4 5], got %v", got)
	}
	if len(rb.Recent(10)) != 4 {
		t.Errorf("expected Recent to cap at len")
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer[int](10)
	if rb.Len() != 0 {
		t.Error("new ring buffer should be empty")
	}
	if len(rb.All()) != 0 {
		t.Error("All() on empty buffer should return empty slice")
	}
	if _, ok := rb.Last(); ok {
		t.Error("Last() on empty buffer should return false")
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Add(1)
	rb.Add(2)
	rb.Clear()
	if rb.Len() != 0 {
		t.Errorf("expected empty after Clear, got %d", rb.Len())
	}
	rb.Add(7)
	if last, _ := rb.Last(); last != 7 {
		t.Errorf("expected last 7, got %d", last)
	}
}
