package wire

import (
	"testing"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/nbody"
)

func TestPingRoundTrips(t *testing.T) {
	b := EncodePing(42)
	msg, err := DecodeSend(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Tag != SendTagPing || msg.PingFrame != 42 {
		t.Fatalf("got %+v", msg)
	}
}

func TestInputStateRoundTrips(t *testing.T) {
	ev := IndexedEvent{
		FrameIndex: 7,
		Event: input.AddBody{
			Position: input.Vec2{X: fixedpoint.FromFloat64(1.5), Y: fixedpoint.FromFloat64(-2.5)},
			Velocity: input.Vec2{X: fixedpoint.FromFloat64(0.25)},
			Mass:     fixedpoint.FromInt(10),
		},
	}
	b := EncodeInputState(ev)
	msg, err := DecodeSend(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Tag != SendTagInputState {
		t.Fatalf("tag = %d, want %d", msg.Tag, SendTagInputState)
	}
	if msg.InputState.FrameIndex != 7 {
		t.Fatalf("FrameIndex = %d, want 7", msg.InputState.FrameIndex)
	}
	if msg.InputState.Event.Mass.RawBits() != ev.Event.Mass.RawBits() {
		t.Fatal("mass raw bits mismatch after round-trip")
	}
	if msg.InputState.Event.Position.X.RawBits() != ev.Event.Position.X.RawBits() {
		t.Fatal("position.x raw bits mismatch after round-trip")
	}
}

func TestStateHashRoundTrips(t *testing.T) {
	b := EncodeStateHash(IndexedState{FrameIndex: 99, Hash: 0xdeadbeefcafef00d})
	msg, err := DecodeRecv(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Tag != RecvTagStateHash {
		t.Fatalf("tag = %d", msg.Tag)
	}
	if msg.StateHash.FrameIndex != 99 || msg.StateHash.Hash != 0xdeadbeefcafef00d {
		t.Fatalf("got %+v", msg.StateHash)
	}
}

func TestDecodeSendTruncatedReturnsError(t *testing.T) {
	if _, err := DecodeSend([]byte{SendTagPing, 0, 0}); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestDecodeRecvUnknownTagReturnsError(t *testing.T) {
	if _, err := DecodeRecv([]byte{0xff}); err == nil {
		t.Fatal("expected unknown tag error")
	}
}

func TestFullStateRoundTrips(t *testing.T) {
	bodies := []nbody.Body{
		{
			ID:           1,
			Position:     nbody.Vec2{X: fixedpoint.FromFloat64(1.5), Y: fixedpoint.FromFloat64(-2.5)},
			Velocity:     nbody.Vec2{X: fixedpoint.FromFloat64(0.5)},
			Acceleration: nbody.Vec2{Y: fixedpoint.FromFloat64(-0.1)},
			Mass:         fixedpoint.FromInt(10),
		},
		{
			ID:       2,
			Position: nbody.Vec2{X: fixedpoint.FromInt(3)},
			Mass:     fixedpoint.FromInt(5),
		},
	}
	b := EncodeFullState(0xabc123, 42, bodies)
	fs, err := DecodeFullState(b)
	if err != nil {
		t.Fatal(err)
	}
	if fs.Hash != 0xabc123 || fs.FrameIndex != 42 {
		t.Fatalf("got hash=%x frame=%d", fs.Hash, fs.FrameIndex)
	}
	if len(fs.Bodies) != 2 {
		t.Fatalf("got %d bodies, want 2", len(fs.Bodies))
	}
	if fs.Bodies[0].ID != 1 || fs.Bodies[0].PositionX.RawBits() != bodies[0].Position.X.RawBits() {
		t.Fatalf("body 0 mismatch: %+v", fs.Bodies[0])
	}
	if fs.Bodies[1].ID != 2 || fs.Bodies[1].Mass.RawBits() != bodies[1].Mass.RawBits() {
		t.Fatalf("body 1 mismatch: %+v", fs.Bodies[1])
	}
}

func TestDecodeFullStateTruncatedReturnsError(t *testing.T) {
	if _, err := DecodeFullState([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected truncation error")
	}
}
