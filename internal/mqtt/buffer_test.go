package mqtt

import (
	"testing"
)

func msg(i int) message {
	return message{topic: "t", payload: []byte{byte(i)}}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10, nil)
	got, dropped := rb.drain()
	if got != nil || dropped != 0 {
		t.Errorf("empty drain: got %d items, %d dropped", len(got), dropped)
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10, nil)
	for i := 0; i < 5; i++ {
		rb.push(msg(i))
	}
	if rb.len() != 5 {
		t.Errorf("len: got %d, want 5", rb.len())
	}

	got, _ := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: got payload %d, want %d", i, got[i].payload[0], i)
		}
	}

	if again, _ := rb.drain(); again != nil {
		t.Errorf("second drain: got %d items, want none", len(again))
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	const capacity = 5
	rb := newRingBuffer(capacity, nil)
	for i := 0; i < capacity+3; i++ {
		rb.push(msg(i))
	}

	got, dropped := rb.drain()
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	if dropped != 3 {
		t.Errorf("dropped: got %d, want 3", dropped)
	}
	for i := 0; i < capacity; i++ {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: got payload %d, want %d", i, got[i].payload[0], want)
		}
	}
}

func TestRingBufferMultipleCycles(t *testing.T) {
	rb := newRingBuffer(5, nil)

	for i := 0; i < 3; i++ {
		rb.push(msg(i))
	}
	rb.drain()

	for i := 10; i < 17; i++ {
		rb.push(msg(i))
	}
	got, dropped := rb.drain()
	if len(got) != 5 || dropped != 2 {
		t.Fatalf("got %d items, %d dropped; want 5, 2", len(got), dropped)
	}
	if got[0].payload[0] != 12 || got[4].payload[0] != 16 {
		t.Errorf("order: first %d, last %d; want 12, 16", got[0].payload[0], got[4].payload[0])
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := newRingBuffer(0, nil)
	rb.push(msg(1))
	rb.push(msg(2))
	got, _ := rb.drain()
	if len(got) != 1 || got[0].payload[0] != 2 {
		t.Errorf("got %v, want only the newest message", got)
	}
}
