// Package httpapi exposes the HTTP-side of the protocol (spec §6):
// SDP offer/answer negotiation for new sessions, and a binary,
// point-in-time read of the authoritative state for late joiners.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/lockstep/nbody-server/internal/hash"
	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/lockstep/nbody-server/internal/serverloop"
	"github.com/lockstep/nbody-server/internal/session"
	"github.com/lockstep/nbody-server/internal/wire"
)

// errBadOffer is returned when a /new_rtc_session request body is
// neither a bare SDP string nor a {"sdp": "..."} object.
var errBadOffer = errors.New("httpapi: missing sdp offer")

// Handler bundles the dependencies the HTTP endpoints need: the
// session Manager negotiating WebRTC peers and the ServerLoop holding
// the authoritative state.
type Handler struct {
	Sessions *session.Manager
	Loop     *serverloop.Loop
}

// sdpEnvelope wraps an SDP string, matching the shape original_source's
// warp handler nests answers and ICE candidates in.
type sdpEnvelope struct {
	SDP string `json:"sdp"`
}

// newSessionResponse is the exact body shape of POST /new_rtc_session
// (spec §6): an answer SDP plus a reserved, always-empty candidate
// object. Trickle ICE is not implemented; gathering completes before
// the answer is returned (see session.Manager.Negotiate).
type newSessionResponse struct {
	Answer    sdpEnvelope            `json:"answer"`
	Candidate map[string]interface{} `json:"candidate"`
}

// Mount registers this Handler's routes on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/new_rtc_session", h.handleNewSession)
	mux.HandleFunc("/state", h.handleState)
}

func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	offerSDP, err := readOfferSDP(r)
	if err != nil {
		logging.L().Warn("new_rtc_session_bad_request", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	answerSDP, err := h.Sessions.Negotiate(r.Context(), offerSDP)
	if err != nil {
		logging.L().Warn("new_rtc_session_negotiation_failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(newSessionResponse{
		Answer:    sdpEnvelope{SDP: answerSDP},
		Candidate: map[string]interface{}{},
	})
}

// readOfferSDP reads the request body as a bare SDP offer string, per
// spec §6 and the reference client (original_source/client/src/
// connection.rs posts the raw local_description().sdp() with no JSON
// wrapping). A {"sdp": "..."} envelope is still accepted as a fallback
// for callers that wrap it.
func readOfferSDP(r *http.Request) (string, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", errBadOffer
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", errBadOffer
	}
	if trimmed[0] == '{' {
		var env sdpEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.SDP != "" {
			return env.SDP, nil
		}
		return "", errBadOffer
	}
	return string(raw), nil
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	state := h.Loop.State()
	bodies := state.Simulation.Bodies()
	body := wire.EncodeFullState(hash.State(state), state.FrameIndex, bodies)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

// StartIdleReaper runs Sessions.ReapIdle on a slow timer until ctx is
// cancelled; kept separate from the tick driver so a stalled HTTP
// mux never delays simulation ticks.
func StartIdleReaper(ctx context.Context, sessions *session.Manager) {
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.ReapIdle()
			}
		}
	}()
}
