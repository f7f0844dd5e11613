// Package simstate ties a Simulation to an InputBuffer and a
// frame_index counter, implementing the step procedure from spec §4.D:
// the single entry point both ServerLoop and ClientLoop call once per
// advanced frame.
package simstate

import (
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/lockstep/nbody-server/internal/nbody"
)

// State bundles a Simulation with the InputBuffer that feeds it and the
// frame counter both advance in lockstep.
type State struct {
	Simulation *nbody.Simulation
	Inputs     *input.Buffer
	FrameIndex uint32
}

// New returns a freshly constructed State at frame 0 with an empty
// simulation and input buffer.
func New() *State {
	return &State{
		Simulation: nbody.New(),
		Inputs:     input.New(),
	}
}

// Step runs one tick of spec §4.D: drain due input, apply current-frame
// events, tick the simulation, and advance frame_index. It is the only
// way FrameIndex should ever change.
func (s *State) Step() {
	for _, r := range s.Inputs.DrainDue(s.FrameIndex) {
		if r.Stale {
			logging.L().Warn("missed_input",
				"event_frame", r.Event.FrameIndex,
				"frame_index", s.FrameIndex,
			)
			continue
		}
		s.applyAddBody(r.Event.AddBody)
	}
	s.Simulation.Tick()
	s.FrameIndex++
}

func (s *State) applyAddBody(ev input.AddBody) {
	s.Simulation.AddBody(
		nbody.Vec2{X: ev.Position.X, Y: ev.Position.Y},
		nbody.Vec2{X: ev.Velocity.X, Y: ev.Velocity.Y},
		ev.Mass,
	)
}

// PushInput queues an InputEvent on behalf of a caller that has already
// classified position/velocity/mass as raw fixed-point scalars; it is a
// thin convenience wrapper so callers outside this package don't reach
// into Inputs.Push directly.
func (s *State) PushInput(ev input.Event) {
	s.Inputs.Push(ev)
}
