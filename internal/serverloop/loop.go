// Package serverloop implements the authoritative ServerLoop from spec
// §4.H: a periodic tick driver and a concurrent message handler,
// synchronized through a single input channel, in the same
// goroutine-per-concern style the teacher's server package uses for
// its reader/writer split.
package serverloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/lockstep/nbody-server/internal/hash"
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/lockstep/nbody-server/internal/metrics"
	"github.com/lockstep/nbody-server/internal/session"
	"github.com/lockstep/nbody-server/internal/simstate"
	"github.com/lockstep/nbody-server/internal/wire"
)

// TickInterval is the target 60 Hz tick period from spec §4.H. A late
// tick never catches up: each fire of the ticker advances exactly one
// frame.
const TickInterval = 16666 * time.Microsecond

// Loop owns the authoritative SimulationState and drives it forward
// while relaying datagrams between connected peers.
type Loop struct {
	state    *simstate.State
	sessions *session.Manager
	logger   *slog.Logger

	tickInterval time.Duration
	inputCh      chan input.Event
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger overrides the default package logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithTickInterval overrides the default 60Hz tick period, primarily
// for tests that want to drive many ticks quickly.
func WithTickInterval(d time.Duration) Option {
	return func(lp *Loop) {
		if d > 0 {
			lp.tickInterval = d
		}
	}
}

// New returns a Loop bound to a fresh authoritative SimulationState and
// the given session Manager.
func New(sessions *session.Manager, opts ...Option) *Loop {
	lp := &Loop{
		state:        simstate.New(),
		sessions:     sessions,
		logger:       logging.L(),
		tickInterval: TickInterval,
		inputCh:      make(chan input.Event, 1024),
	}
	for _, o := range opts {
		o(lp)
	}
	return lp
}

// Run drives both concurrent activities described in spec §4.H until
// ctx is cancelled.
func (lp *Loop) Run(ctx context.Context) {
	go lp.runMessageHandler(ctx)
	lp.runTickDriver(ctx)
}

// runTickDriver is the periodic (target 60Hz) activity: drain queued
// input, step, hash, broadcast.
func (lp *Loop) runTickDriver(ctx context.Context) {
	ticker := time.NewTicker(lp.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lp.tick()
		}
	}
}

func (lp *Loop) tick() {
	start := time.Now()
	lp.drainInputChannel()
	lp.state.Step()
	h := hash.State(lp.state)
	metrics.SetBodyCount(lp.state.Simulation.BodyCount())
	payload := wire.EncodeStateHash(wire.IndexedState{FrameIndex: lp.state.FrameIndex, Hash: h})
	lp.sessions.Broadcast(payload)
	metrics.IncTick(time.Since(start).Seconds())
}

func (lp *Loop) drainInputChannel() {
	for {
		select {
		case ev := <-lp.inputCh:
			lp.state.PushInput(ev)
		default:
			return
		}
	}
}

// runMessageHandler is the second concurrent activity: decode each
// inbound datagram and react per spec §4.H.
func (lp *Loop) runMessageHandler(ctx context.Context) {
	for {
		in, err := lp.sessions.Recv(ctx)
		if err != nil {
			return
		}
		lp.handleDatagram(in)
	}
}

func (lp *Loop) handleDatagram(in session.Inbound) {
	msg, err := wire.DecodeSend(in.Payload)
	if err != nil {
		metrics.IncMalformed()
		lp.logger.Warn("datagram_decode_failed", "peer", in.Peer, "error", err)
		return
	}
	switch msg.Tag {
	case wire.SendTagPing:
		lp.sessions.SendTo(in.Peer, wire.EncodePong(msg.PingFrame))
	case wire.SendTagInputState:
		ev := input.Event{FrameIndex: msg.InputState.FrameIndex, AddBody: msg.InputState.Event}
		select {
		case lp.inputCh <- ev:
		default:
			metrics.IncHubDrop()
		}
		lp.sessions.BroadcastExcept(in.Payload, in.Peer)
	}
}

// State exposes the authoritative SimulationState for tests and the
// HTTP /state endpoint. The returned pointer is shared with the tick
// driver; callers outside this package must treat it as read-only.
func (lp *Loop) State() *simstate.State { return lp.state }
