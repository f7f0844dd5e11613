package simstate

import (
	"testing"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
	"github.com/lockstep/nbody-server/internal/input"
)

func zeroVec() input.Vec2 { return input.Vec2{} }

func TestFreshStateFrameIndexMatchesStepCount(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Step()
	}
	if s.FrameIndex != 10 {
		t.Fatalf("FrameIndex = %d, want 10", s.FrameIndex)
	}
}

func TestStaleInputIsDroppedNotApplied(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Step()
	}
	s.PushInput(input.Event{FrameIndex: 5, AddBody: input.AddBody{
		Position: zeroVec(), Velocity: zeroVec(), Mass: fixedpoint.FromInt(1),
	}})
	s.Step()
	if s.Simulation.BodyCount() != 0 {
		t.Fatalf("BodyCount() = %d, want 0 (stale input must not apply)", s.Simulation.BodyCount())
	}
}

func TestFutureInputIsDeferredThenApplied(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Step()
	}
	s.PushInput(input.Event{FrameIndex: 15, AddBody: input.AddBody{
		Position: zeroVec(), Velocity: zeroVec(), Mass: fixedpoint.FromInt(1),
	}})
	for s.FrameIndex < 15 {
		s.Step()
		if s.Simulation.BodyCount() != 0 {
			t.Fatalf("frame %d: BodyCount() = %d, want 0 before frame 15", s.FrameIndex, s.Simulation.BodyCount())
		}
	}
	s.Step()
	if s.Simulation.BodyCount() != 1 {
		t.Fatalf("BodyCount() = %d, want 1 at frame 15", s.Simulation.BodyCount())
	}
}
