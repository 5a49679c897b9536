package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/raknet/internal/auth"
	"github.com/danmuck/raknet/internal/observability"
	"github.com/danmuck/raknet/internal/peer"
	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/danmuck/raknet/internal/testutil/testlog"
)

type stubSource struct {
	sessions []peer.SessionInfo
}

func (stubSource) Name() string                   { return "peer-a" }
func (stubSource) GUID() uint64                   { return 42 }
func (s stubSource) Sessions() []peer.SessionInfo { return s.sessions }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New(":0", stubSource{}, Options{})

	rr := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["peer"] != "peer-a" {
		t.Fatalf("unexpected health body: %#v", body)
	}

	if rr := get(t, s, "/ready"); rr.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d", rr.Code)
	}
	s.SetReady(func() bool { return false })
	if rr := get(t, s, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected ready 503, got %d", rr.Code)
	}
}

func TestSessionsSnapshot(t *testing.T) {
	testlog.Start(t)
	src := stubSource{sessions: []peer.SessionInfo{
		{Remote: "127.0.0.1:19133", PeerGUID: 7, MTU: 1200, State: "connected"},
	}}
	s := New(":0", src, Options{})

	rr := get(t, s, "/sessions")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		GUID     uint64             `json:"guid"`
		Sessions []peer.SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.GUID != 42 || len(body.Sessions) != 1 {
		t.Fatalf("unexpected sessions body: %+v", body)
	}
	if got := body.Sessions[0]; got.PeerGUID != 7 || got.MTU != 1200 || got.State != "connected" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestMetricsExposeSessionCounters(t *testing.T) {
	testlog.Start(t)
	s := New(":0", stubSource{}, Options{})
	obs := observability.NewEngineObserver("peer-a")
	obs.Sent("frame", 120)
	obs.Delivered(reliability.ReliableOrdered, 64)
	observability.NewHandshakeObserver("peer-a").Handshake("dial", "ok")

	rr := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	out := rr.Body.String()
	for _, want := range []string{
		"raknet_session_datagrams_sent_total",
		"raknet_session_messages_delivered_total",
		"raknet_handshake_outcomes_total",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestSessionsRequireToken(t *testing.T) {
	testlog.Start(t)
	s := New(":0", stubSource{}, Options{Token: auth.StaticToken{Token: "t0k"}})

	if rr := get(t, s, "/sessions"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer t0k")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	if rr := get(t, s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}
