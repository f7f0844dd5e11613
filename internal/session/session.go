// Package session abstracts a best-effort bidirectional datagram
// endpoint over an unreliable, unordered WebRTC data channel (spec
// §4.G). Peers appear when their offer/answer handshake completes and
// disappear on an implementation-defined idle timeout; the core makes
// no stronger delivery or ordering guarantee than that.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lockstep/nbody-server/internal/hub"
	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/lockstep/nbody-server/internal/metrics"
	"github.com/pion/webrtc/v4"
)

// ErrNegotiationFailed wraps any failure establishing a new peer
// connection from an SDP offer.
var ErrNegotiationFailed = errors.New("session: negotiation failed")

// PeerID identifies one connected peer for the lifetime of its data
// channel.
type PeerID uint64

// Inbound pairs a datagram with the peer it arrived from.
type Inbound struct {
	Peer    PeerID
	Payload []byte
}

// peer wraps one negotiated WebRTC connection and its single
// unreliable/unordered data channel. Outbound datagrams are funneled
// through a hub.Client so fan-out backpressure (drop vs. kick) is
// handled uniformly with every other broadcast in the system.
type peer struct {
	id         PeerID
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	client     *hub.Client
	lastActive atomic.Int64 // unix nanoseconds
}

// Manager is the server-side SessionChannel: it owns every negotiated
// peer connection, fans outbound datagrams out through a hub.Hub, and
// multiplexes inbound datagrams onto one channel (spec §4.G
// "connected_peers / send_to / recv").
type Manager struct {
	mu        sync.RWMutex
	peers     map[PeerID]*peer
	hub       *hub.Hub
	nextID    atomic.Uint64
	inbound   chan Inbound
	idleAfter time.Duration
	outBuf    int
	api       *webrtc.API
}

// NewManager returns a Manager. idleAfter is the implementation-defined
// idle timeout after which a peer with no traffic is dropped.
func NewManager(idleAfter time.Duration) *Manager {
	return NewManagerWithHub(idleAfter, 256, hub.PolicyDrop)
}

// NewManagerWithHub is like NewManager but lets the caller configure the
// per-peer outbound buffer depth and backpressure policy of the
// underlying hub.Hub, mirroring the teacher's configurable hub-buffer /
// hub-policy flags.
func NewManagerWithHub(idleAfter time.Duration, outBuf int, policy hub.BackpressurePolicy) *Manager {
	return NewManagerWithTransport(idleAfter, outBuf, policy, "", "")
}

// NewManagerWithTransport is like NewManagerWithHub but additionally
// pins the ICE UDP port to dataAddr's port and, when publicAddr names a
// different host than dataAddr, advertises that host via NAT1:1
// candidates — the spec §6 "datagram-data" / "datagram-public" address
// pair bound together under PORT. Either address may be empty, in
// which case pion's library defaults (ephemeral port, no NAT mapping)
// apply, matching the teacher's "glue is optional" style for transport
// configuration.
func NewManagerWithTransport(idleAfter time.Duration, outBuf int, policy hub.BackpressurePolicy, dataAddr, publicAddr string) *Manager {
	if idleAfter <= 0 {
		idleAfter = 30 * time.Second
	}
	if outBuf <= 0 {
		outBuf = 256
	}
	h := hub.New()
	h.OutBufSize = outBuf
	h.Policy = policy
	return &Manager{
		peers:     make(map[PeerID]*peer),
		hub:       h,
		inbound:   make(chan Inbound, 256),
		idleAfter: idleAfter,
		outBuf:    h.OutBufSize,
		api:       buildAPI(dataAddr, publicAddr),
	}
}

// buildAPI configures a pion SettingEngine from the data/public address
// pair and returns the API a PeerConnection is created from. Any parse
// failure falls back to pion's unconfigured defaults rather than
// failing session negotiation outright.
func buildAPI(dataAddr, publicAddr string) *webrtc.API {
	var se webrtc.SettingEngine
	if dataAddr != "" {
		if _, portStr, err := net.SplitHostPort(dataAddr); err == nil {
			if p, err := strconv.ParseUint(portStr, 10, 16); err == nil && p > 0 {
				if err := se.SetEphemeralUDPPortRange(uint16(p), uint16(p)); err != nil {
					logging.L().Warn("session_udp_port_pin_failed", "addr", dataAddr, "error", err)
				}
			}
		}
	}
	if publicAddr != "" {
		dataHost, _, _ := net.SplitHostPort(dataAddr)
		if pubHost, _, err := net.SplitHostPort(publicAddr); err == nil && pubHost != "" && pubHost != "0.0.0.0" && pubHost != dataHost {
			se.SetNAT1To1IPs([]string{pubHost}, webrtc.ICECandidateTypeHost)
		}
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// Negotiate consumes a client's SDP offer, creates a PeerConnection
// configured for an unordered, unreliable data channel (ordered=false,
// maxRetransmits=0, matching original_source's webrtc_unreliable
// usage), and returns the SDP answer. The resulting peer is registered
// once its data channel opens.
func (m *Manager) Negotiate(ctx context.Context, offerSDP string) (answerSDP string, err error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", fmt.Errorf("%w: new peer connection: %v", ErrNegotiationFailed, err)
	}

	id := PeerID(m.nextID.Add(1))
	p := &peer{
		id:     id,
		pc:     pc,
		client: &hub.Client{Out: make(chan []byte, m.outBuf), Closed: make(chan struct{})},
	}
	p.lastActive.Store(time.Now().UnixNano())

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.dc = dc
		dc.OnOpen(func() {
			m.register(p)
			go p.pumpOutbound()
			logging.L().Info("session_peer_connected", "peer", id)
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			p.lastActive.Store(time.Now().UnixNano())
			metrics.IncDatagramsRx()
			select {
			case m.inbound <- Inbound{Peer: id, Payload: msg.Data}:
			default:
				metrics.IncHubDrop()
			}
		})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateDisconnected {
			m.remove(id)
		}
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return "", fmt.Errorf("%w: set remote description: %v", ErrNegotiationFailed, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return "", fmt.Errorf("%w: create answer: %v", ErrNegotiationFailed, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return "", fmt.Errorf("%w: set local description: %v", ErrNegotiationFailed, err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		_ = pc.Close()
		return "", fmt.Errorf("%w: %v", ErrNegotiationFailed, ctx.Err())
	}

	return pc.LocalDescription().SDP, nil
}

// pumpOutbound drains this peer's hub.Client queue onto its data
// channel until the client is closed, mirroring the teacher's
// writer-goroutine-per-connection shape.
func (p *peer) pumpOutbound() {
	for {
		select {
		case payload := <-p.client.Out:
			if err := p.dc.Send(payload); err != nil {
				metrics.IncError(metrics.ErrSessionWrite)
				return
			}
			metrics.AddDatagramsTx(1)
		case <-p.client.Closed:
			return
		}
	}
}

func (m *Manager) register(p *peer) {
	m.mu.Lock()
	m.peers[p.id] = p
	m.mu.Unlock()
	m.hub.Add(p.client)
}

func (m *Manager) remove(id PeerID) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
	}
	m.mu.Unlock()
	if ok {
		m.hub.Remove(p.client)
		_ = p.pc.Close()
		logging.L().Info("session_peer_disconnected", "peer", id)
	}
}

// Count returns the number of currently registered peers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// ConnectedPeers returns a snapshot of currently registered peer ids.
func (m *Manager) ConnectedPeers() []PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]PeerID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

// SendTo enqueues payload on the named peer's outbound queue. Like the
// rest of this abstraction it is best-effort: a closed or backpressured
// queue silently drops the datagram per the hub's policy.
func (m *Manager) SendTo(id PeerID, payload []byte) {
	m.mu.RLock()
	p, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case p.client.Out <- payload:
	default:
		if m.hub.Policy == hub.PolicyKick {
			p.client.Close()
		}
	}
}

// Broadcast sends payload to every connected peer.
func (m *Manager) Broadcast(payload []byte) {
	m.hub.Broadcast(payload)
}

// BroadcastExcept sends payload to every connected peer other than
// except, used to echo one peer's input to everyone else (spec §4.H).
func (m *Manager) BroadcastExcept(payload []byte, except PeerID) {
	m.mu.RLock()
	exceptClient := (*hub.Client)(nil)
	if p, ok := m.peers[except]; ok {
		exceptClient = p.client
	}
	m.mu.RUnlock()
	m.hub.BroadcastExcept(payload, exceptClient)
}

// Recv blocks until the next inbound datagram from any peer, or ctx is
// done.
func (m *Manager) Recv(ctx context.Context) (Inbound, error) {
	select {
	case in := <-m.inbound:
		return in, nil
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	}
}

// ReapIdle closes every peer connection that has had no inbound
// traffic for longer than idleAfter. Callers run this on a timer;
// membership notifications beyond that are implementation-defined
// (spec §4.G).
func (m *Manager) ReapIdle() {
	cutoff := time.Now().Add(-m.idleAfter).UnixNano()
	m.mu.RLock()
	var stale []PeerID
	for id, p := range m.peers {
		if p.lastActive.Load() < cutoff {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.remove(id)
	}
}
