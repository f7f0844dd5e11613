package serverloop

import (
	"testing"
	"time"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/session"
	"github.com/lockstep/nbody-server/internal/wire"
)

func newTestLoop() *Loop {
	return New(session.NewManager(30 * time.Second))
}

func TestTickAdvancesFrameIndex(t *testing.T) {
	lp := newTestLoop()
	lp.tick()
	if lp.state.FrameIndex != 1 {
		t.Fatalf("FrameIndex = %d, want 1", lp.state.FrameIndex)
	}
}

func TestHandleDatagramPingWithNoPeersDoesNotPanic(t *testing.T) {
	lp := newTestLoop()
	lp.handleDatagram(session.Inbound{Peer: 1, Payload: wire.EncodePing(7)})
	// No connected peers, so SendTo is a silent no-op; this exercises
	// the decode-and-dispatch path without panicking.
}

func TestHandleDatagramInputStateQueuesForNextTick(t *testing.T) {
	lp := newTestLoop()
	ev := wire.IndexedEvent{
		FrameIndex: 3,
		Event: input.AddBody{
			Position: input.Vec2{X: fixedpoint.FromInt(1), Y: fixedpoint.Zero},
			Velocity: input.Vec2{X: fixedpoint.Zero, Y: fixedpoint.Zero},
			Mass:     fixedpoint.FromInt(1),
		},
	}
	lp.handleDatagram(session.Inbound{Peer: 1, Payload: wire.EncodeInputState(ev)})

	select {
	case queued := <-lp.inputCh:
		if queued.FrameIndex != 3 {
			t.Fatalf("queued.FrameIndex = %d, want 3", queued.FrameIndex)
		}
	default:
		t.Fatal("expected input to be queued onto inputCh")
	}
}

func TestHandleDatagramMalformedIsDroppedNotFatal(t *testing.T) {
	lp := newTestLoop()
	lp.handleDatagram(session.Inbound{Peer: 1, Payload: []byte{}})
	lp.handleDatagram(session.Inbound{Peer: 1, Payload: []byte{99}})
	// Neither call should panic or queue anything.
	select {
	case <-lp.inputCh:
		t.Fatal("expected no input queued from malformed datagrams")
	default:
	}
}

func TestDrainInputChannelAppliesQueuedInputsBeforeTick(t *testing.T) {
	lp := newTestLoop()
	lp.inputCh <- input.Event{
		FrameIndex: 0,
		AddBody: input.AddBody{
			Position: input.Vec2{X: fixedpoint.Zero, Y: fixedpoint.Zero},
			Velocity: input.Vec2{X: fixedpoint.Zero, Y: fixedpoint.Zero},
			Mass:     fixedpoint.FromInt(2),
		},
	}
	lp.tick()
	if got := lp.state.Simulation.BodyCount(); got != 1 {
		t.Fatalf("BodyCount = %d, want 1", got)
	}
}

func TestWithTickIntervalOverride(t *testing.T) {
	lp := New(session.NewManager(time.Second), WithTickInterval(time.Millisecond))
	if lp.tickInterval != time.Millisecond {
		t.Fatalf("tickInterval = %v, want 1ms", lp.tickInterval)
	}
}
