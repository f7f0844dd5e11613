package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lockstep/nbody-server/internal/hash"
	"github.com/lockstep/nbody-server/internal/serverloop"
	"github.com/lockstep/nbody-server/internal/session"
	"github.com/lockstep/nbody-server/internal/wire"
)

func newTestHandler() *Handler {
	sessions := session.NewManager(30 * time.Second)
	loop := serverloop.New(sessions)
	return &Handler{Sessions: sessions, Loop: loop}
}

// TestStateEndpointHashRoundTrips exercises spec §8 scenario 5: a
// client decoding GET /state must find the embedded hash equal to its
// own recomputation of Hasher(state).
func TestStateEndpointHashRoundTrips(t *testing.T) {
	h := newTestHandler()
	mux := http.NewServeMux()
	h.Mount(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	fs, err := wire.DecodeFullState(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFullState: %v", err)
	}

	state := h.Loop.State()
	want := hash.State(state)
	if fs.Hash != want {
		t.Fatalf("embedded hash %d != recomputed hash %d", fs.Hash, want)
	}
	if fs.FrameIndex != state.FrameIndex {
		t.Fatalf("FrameIndex = %d, want %d", fs.FrameIndex, state.FrameIndex)
	}
}

func TestStateEndpointSetsCORSHeader(t *testing.T) {
	h := newTestHandler()
	mux := http.NewServeMux()
	h.Mount(mux)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestNewRtcSessionRejectsMissingOffer(t *testing.T) {
	h := newTestHandler()
	mux := http.NewServeMux()
	h.Mount(mux)

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/new_rtc_session", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

// TestReadOfferSDPAcceptsRawBody guards spec §6's actual wire shape: the
// reference client posts the bare SDP offer text with no JSON wrapping
// (original_source/client/src/connection.rs), so readOfferSDP must
// return the body verbatim rather than 400 it as malformed JSON.
func TestReadOfferSDPAcceptsRawBody(t *testing.T) {
	const raw = "v=0\r\no=- 46117317 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	req := httptest.NewRequest(http.MethodPost, "/new_rtc_session", strings.NewReader(raw))
	got, err := readOfferSDP(req)
	if err != nil {
		t.Fatalf("readOfferSDP: %v", err)
	}
	if got != raw {
		t.Fatalf("readOfferSDP = %q, want %q", got, raw)
	}
}

// TestReadOfferSDPAcceptsJSONEnvelopeFallback keeps the {"sdp": "..."}
// shape working for any caller that still wraps the offer in JSON.
func TestReadOfferSDPAcceptsJSONEnvelopeFallback(t *testing.T) {
	body, _ := json.Marshal(sdpEnvelope{SDP: "v=0\r\n"})
	req := httptest.NewRequest(http.MethodPost, "/new_rtc_session", bytes.NewReader(body))
	got, err := readOfferSDP(req)
	if err != nil {
		t.Fatalf("readOfferSDP: %v", err)
	}
	if got != "v=0\r\n" {
		t.Fatalf("readOfferSDP = %q, want %q", got, "v=0\r\n")
	}
}

func TestReadOfferSDPRejectsEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/new_rtc_session", strings.NewReader(""))
	if _, err := readOfferSDP(req); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestNewRtcSessionRejectsWrongMethod(t *testing.T) {
	h := newTestHandler()
	mux := http.NewServeMux()
	h.Mount(mux)

	req := httptest.NewRequest(http.MethodGet, "/new_rtc_session", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}
