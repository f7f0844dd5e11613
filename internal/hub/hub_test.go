package hub

import (
	"testing"
	"time"
)

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := &Client{Out: make(chan []byte, 4), Closed: make(chan struct{})}
	h.Add(cl)
	defer h.Remove(cl)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast([]byte{0x01})
	}
	elapsed := time.Since(start)
	if elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := &Client{Out: make(chan []byte, 1), Closed: make(chan struct{})}
	fast := &Client{Out: make(chan []byte, 16), Closed: make(chan struct{})}
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	h.Broadcast([]byte{0x01})
	select {
	case <-slow.Out:
	default:
	}

	for i := 0; i < 10; i++ {
		h.Broadcast([]byte{0x02})
	}

	got := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-fast.Out:
			got++
			if got >= 5 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	if got == 0 {
		t.Fatalf("fast client did not receive any datagrams while slow was backpressured")
	}
}

func TestHub_BroadcastExcept_SkipsSender(t *testing.T) {
	h := New()
	sender := &Client{Out: make(chan []byte, 4), Closed: make(chan struct{})}
	other := &Client{Out: make(chan []byte, 4), Closed: make(chan struct{})}
	h.Add(sender)
	h.Add(other)
	defer h.Remove(sender)
	defer h.Remove(other)

	h.BroadcastExcept([]byte{0x42}, sender)

	if len(sender.Out) != 0 {
		t.Fatalf("sender should not receive its own echo, got %d queued", len(sender.Out))
	}
	if len(other.Out) != 1 {
		t.Fatalf("other peer should receive the echo, got %d queued", len(other.Out))
	}
}
