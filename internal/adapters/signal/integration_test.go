package signal_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	router "github.com/maitrungduc1410/WebRTC-Demo/internal/adapters/http"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/app"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/config"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

// client wraps a signaling channel with buffered event inboxes.
type client struct {
	ch         *signaling.Channel
	peerJoined chan struct{}
	offers     chan signaling.SessionDescription
	answers    chan signaling.SessionDescription
	candidates chan signaling.ICECandidate
	messages   chan string
}

func dial(t *testing.T, wsURL string) *client {
	t.Helper()
	c := &client{
		peerJoined: make(chan struct{}, 4),
		offers:     make(chan signaling.SessionDescription, 4),
		answers:    make(chan signaling.SessionDescription, 4),
		candidates: make(chan signaling.ICECandidate, 4),
		messages:   make(chan string, 4),
	}
	c.ch = signaling.NewChannel(wsURL, signaling.Handlers{
		OnPeerJoined:    func() { c.peerJoined <- struct{}{} },
		OnOffer:         func(sd signaling.SessionDescription) { c.offers <- sd },
		OnAnswer:        func(sd signaling.SessionDescription) { c.answers <- sd },
		OnCandidate:     func(cand signaling.ICECandidate) { c.candidates <- cand },
		OnServerMessage: func(msg string) { c.messages <- msg },
	})
	if err := c.ch.Connect(); err != nil {
		t.Fatalf("connect %s: %v", wsURL, err)
	}
	t.Cleanup(c.ch.Close)
	return c
}

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{Mode: "release", Secret: "test-secret"}
	r := router.SetupRouter(ctx, cfg, app.NewRegistry())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/ws/signal"
}

func waitEvent[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCallSetupOverWebsocket(t *testing.T) {
	wsURL := startServer(t)
	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	if err := alice.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	// The waiting creator hears about the newcomer; the newcomer does not.
	waitEvent(t, alice.peerJoined, "peer-joined at alice")
	expectQuiet(t, bob.peerJoined, "peer-joined at bob")

	offer := signaling.SessionDescription{Type: "offer", SDP: "v=0\r\n"}
	if err := alice.ch.SendOffer("room1", offer); err != nil {
		t.Fatalf("send offer: %v", err)
	}
	got := waitEvent(t, bob.offers, "offer at bob")
	if got.SDP != offer.SDP {
		t.Fatalf("offer sdp = %q, want %q", got.SDP, offer.SDP)
	}
	// The relay never echoes back to the sender.
	expectQuiet(t, alice.offers, "offer echoed to alice")

	answer := signaling.SessionDescription{Type: "answer", SDP: "v=0\r\n"}
	if err := bob.ch.SendAnswer("room1", answer); err != nil {
		t.Fatalf("send answer: %v", err)
	}
	waitEvent(t, alice.answers, "answer at alice")

	cand := signaling.ICECandidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host", SDPMid: "0"}
	if err := alice.ch.SendCandidate("room1", cand); err != nil {
		t.Fatalf("send candidate: %v", err)
	}
	gotCand := waitEvent(t, bob.candidates, "candidate at bob")
	if gotCand.Candidate != cand.Candidate {
		t.Fatalf("candidate = %q, want %q", gotCand.Candidate, cand.Candidate)
	}
}

func TestThirdParticipantRejected(t *testing.T) {
	wsURL := startServer(t)
	alice := dial(t, wsURL)
	bob := dial(t, wsURL)
	carol := dial(t, wsURL)

	if err := alice.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitEvent(t, alice.peerJoined, "peer-joined at alice")

	if err := carol.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("carol join: %v", err)
	}
	if msg := waitEvent(t, carol.messages, "rejection at carol"); msg != "Room is full" {
		t.Fatalf("rejection = %q, want %q", msg, "Room is full")
	}
	// The members must not learn about the rejected join.
	expectQuiet(t, alice.peerJoined, "peer-joined for rejected third")
}

func TestRejoinAndUnknownRoom(t *testing.T) {
	wsURL := startServer(t)
	alice := dial(t, wsURL)

	if err := alice.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := alice.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if msg := waitEvent(t, alice.messages, "rejoin notice"); msg != "User is already in this room" {
		t.Fatalf("rejoin notice = %q", msg)
	}

	if err := alice.ch.LeaveRoom("ghost"); err != nil {
		t.Fatalf("leave unknown: %v", err)
	}
	if msg := waitEvent(t, alice.messages, "unknown room notice"); msg != "Room not found" {
		t.Fatalf("unknown room notice = %q", msg)
	}
}

func TestDisconnectFreesSlot(t *testing.T) {
	wsURL := startServer(t)
	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	if err := alice.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.ch.JoinRoom("room1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitEvent(t, alice.peerJoined, "peer-joined at alice")

	bob.ch.Close()

	// The vacated slot becomes available once the server notices the drop.
	deadline := time.Now().Add(3 * time.Second)
	for {
		carol := dial(t, wsURL)
		if err := carol.ch.JoinRoom("room1"); err != nil {
			t.Fatalf("carol join: %v", err)
		}
		select {
		case <-alice.peerJoined:
			return
		case msg := <-carol.messages:
			if msg != "Room is full" {
				t.Fatalf("unexpected message %q", msg)
			}
			if time.Now().After(deadline) {
				t.Fatal("slot never freed after disconnect")
			}
			carol.ch.Close()
			time.Sleep(50 * time.Millisecond)
		case <-time.After(3 * time.Second):
			t.Fatal("no response to carol's join")
		}
	}
}
