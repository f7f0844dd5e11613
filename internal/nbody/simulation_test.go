package nbody

import (
	"testing"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
)

func f(n float64) fixedpoint.Scalar { return fixedpoint.FromFloat64(n) }

func TestTwoBodyAttractionReducesDistance(t *testing.T) {
	sim := New()
	sim.AddBody(Vec2{X: f(-10), Y: f(0)}, Vec2{}, f(1000))
	sim.AddBody(Vec2{X: f(10), Y: f(0)}, Vec2{}, f(1000))

	before := distanceSquared(sim.Bodies()[0].Position, sim.Bodies()[1].Position)
	sim.Tick()
	after := distanceSquared(sim.Bodies()[0].Position, sim.Bodies()[1].Position)

	if after.Cmp(before) >= 0 {
		t.Fatalf("expected distance squared to shrink: before=%v after=%v", before.ToFloat64(), after.ToFloat64())
	}
}

func TestTouchingBodiesMerge(t *testing.T) {
	sim := New()
	sim.AddBody(Vec2{X: f(0), Y: f(0)}, Vec2{}, f(1))
	sim.AddBody(Vec2{X: f(1), Y: f(0)}, Vec2{}, f(1))

	sim.Tick()

	if got := sim.BodyCount(); got != 1 {
		t.Fatalf("BodyCount() = %d, want 1", got)
	}
	merged := sim.Bodies()[0]
	if got := merged.Mass.ToFloat64(); got != 2 {
		t.Fatalf("merged mass = %v, want 2", got)
	}
}

func TestMassIsConservedAcrossMerges(t *testing.T) {
	sim := New()
	sim.AddBody(Vec2{X: f(0), Y: f(0)}, Vec2{}, f(3))
	sim.AddBody(Vec2{X: f(0.1), Y: f(0)}, Vec2{}, f(5))
	sim.AddBody(Vec2{X: f(50), Y: f(50)}, Vec2{}, f(7))

	var totalBefore fixedpoint.Scalar
	for _, b := range sim.Bodies() {
		totalBefore = totalBefore.Add(b.Mass)
	}

	sim.Tick()

	var totalAfter fixedpoint.Scalar
	for _, b := range sim.Bodies() {
		totalAfter = totalAfter.Add(b.Mass)
	}

	if totalAfter != totalBefore {
		t.Fatalf("mass not conserved: before=%v after=%v", totalBefore.ToFloat64(), totalAfter.ToFloat64())
	}
}

func TestBodyCountNeverIncreases(t *testing.T) {
	sim := New()
	sim.AddBody(Vec2{X: f(0), Y: f(0)}, Vec2{}, f(1))
	sim.AddBody(Vec2{X: f(100), Y: f(100)}, Vec2{}, f(1))
	sim.AddBody(Vec2{X: f(-100), Y: f(-100)}, Vec2{}, f(1))

	prev := sim.BodyCount()
	for i := 0; i < 10; i++ {
		sim.Tick()
		if got := sim.BodyCount(); got > prev {
			t.Fatalf("tick %d: body count grew from %d to %d", i, prev, got)
		}
		prev = sim.BodyCount()
	}
}

func TestThreeWayCollisionMergesInEnumerationOrder(t *testing.T) {
	sim := New()
	sim.AddBody(Vec2{X: f(0), Y: f(0)}, Vec2{}, f(1))
	sim.AddBody(Vec2{X: f(0.5), Y: f(0)}, Vec2{}, f(1))
	sim.AddBody(Vec2{X: f(1), Y: f(0)}, Vec2{}, f(1))

	sim.Tick()

	if got := sim.BodyCount(); got != 1 {
		t.Fatalf("BodyCount() = %d, want 1", got)
	}
	if got := sim.Bodies()[0].Mass.ToFloat64(); got != 3 {
		t.Fatalf("merged mass = %v, want 3", got)
	}
}
