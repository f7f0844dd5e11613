package clientloop

import (
	"testing"

	"github.com/lockstep/nbody-server/internal/wire"
)

// fakeConn is an in-memory Datagram that loops nothing back by
// default; tests inject queued inbound payloads directly.
type fakeConn struct {
	sent  [][]byte
	queue [][]byte
}

func (f *fakeConn) Send(payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) TryRecv() ([]byte, bool) {
	if len(f.queue) == 0 {
		return nil, false
	}
	b := f.queue[0]
	f.queue = f.queue[1:]
	return b, true
}

func TestTickSendsPing(t *testing.T) {
	conn := &fakeConn{}
	lp := New(conn)
	lp.Tick()
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d datagrams, want 1", len(conn.sent))
	}
	msg, err := wire.DecodeSend(conn.sent[0])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Tag != wire.SendTagPing {
		t.Fatalf("tag = %d, want ping", msg.Tag)
	}
}

func TestStepsWhenNotAheadOfServer(t *testing.T) {
	conn := &fakeConn{}
	lp := New(conn)
	lp.serverFrameIndex = 100
	lp.Tick()
	if lp.state.FrameIndex != 1 {
		t.Fatalf("FrameIndex = %d, want 1", lp.state.FrameIndex)
	}
}

func TestSkipsStepWhenAheadOfTarget(t *testing.T) {
	conn := &fakeConn{}
	lp := New(conn)
	lp.state.FrameIndex = 1000
	lp.serverFrameIndex = 0
	lp.Tick()
	if lp.state.FrameIndex != 1000 {
		t.Fatalf("FrameIndex = %d, want unchanged at 1000", lp.state.FrameIndex)
	}
}

func TestStateHashBeaconMatchRemovesFromRing(t *testing.T) {
	conn := &fakeConn{}
	lp := New(conn)
	lp.Tick() // records frame 0 in the ring and steps to frame 1

	h, ok := lp.ring.Lookup(0)
	if !ok {
		t.Fatal("expected frame 0 to be recorded in the ring")
	}
	beacon := wire.EncodeStateHash(wire.IndexedState{FrameIndex: 0, Hash: h})
	conn.queue = append(conn.queue, beacon)
	lp.Tick()

	if _, ok := lp.ring.Lookup(0); ok {
		t.Fatal("expected matching beacon to remove frame 0 from the ring")
	}
}
