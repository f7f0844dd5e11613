package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
)

// OfferEnvelope is the JSON body Dial posts to /new_rtc_session (spec
// §4.F "HTTP-side"); AnswerEnvelope is the object found under the
// response's "answer" key.
type OfferEnvelope struct {
	SDP string `json:"sdp"`
}

type AnswerEnvelope struct {
	SDP string `json:"sdp"`
}

// Client is the client-side SessionChannel: a single unordered,
// unreliable data channel dialed against a lockstep server's
// /new_rtc_session endpoint.
type Client struct {
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	inbound chan []byte

	mu   sync.Mutex
	open bool
}

// Dial negotiates a new session against serverURL (the base URL a
// lockstep server's HTTP API is mounted on) and blocks until the data
// channel opens or ctx is done.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", ErrNegotiationFailed, err)
	}

	ordered := false
	maxRetransmits := uint16(0)
	dc, err := pc.CreateDataChannel("nbody", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: create data channel: %v", ErrNegotiationFailed, err)
	}

	c := &Client{pc: pc, dc: dc, inbound: make(chan []byte, 256)}
	opened := make(chan struct{})
	dc.OnOpen(func() {
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		close(opened)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.inbound <- msg.Data:
		default:
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: create offer: %v", ErrNegotiationFailed, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: set local description: %v", ErrNegotiationFailed, err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %v", ErrNegotiationFailed, ctx.Err())
	}

	answerSDP, err := postOffer(ctx, serverURL, pc.LocalDescription().SDP)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: set remote description: %v", ErrNegotiationFailed, err)
	}

	select {
	case <-opened:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %v", ErrNegotiationFailed, ctx.Err())
	}
	return c, nil
}

func postOffer(ctx context.Context, serverURL, offerSDP string) (string, error) {
	body, err := json.Marshal(OfferEnvelope{SDP: offerSDP})
	if err != nil {
		return "", fmt.Errorf("%w: marshal offer: %v", ErrNegotiationFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/new_rtc_session", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrNegotiationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: post offer: %v", ErrNegotiationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrNegotiationFailed, resp.StatusCode)
	}
	var ans struct {
		Answer AnswerEnvelope `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return "", fmt.Errorf("%w: decode answer: %v", ErrNegotiationFailed, err)
	}
	return ans.Answer.SDP, nil
}

// Send enqueues payload for delivery; like the server side, this is
// best-effort and never blocks indefinitely.
func (c *Client) Send(payload []byte) error {
	return c.dc.Send(payload)
}

// TryRecv returns the next available inbound datagram, or false if
// none is queued.
func (c *Client) TryRecv() ([]byte, bool) {
	select {
	case b := <-c.inbound:
		return b, true
	default:
		return nil, false
	}
}

// Close tears down the underlying peer connection.
func (c *Client) Close() error {
	return c.pc.Close()
}
