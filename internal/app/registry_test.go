package app

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   error
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func TestJoinLifecycle(t *testing.T) {
	reg := NewRegistry()

	if got := reg.Join("r1", "alice", &fakeConn{}); got != domain.JoinCreated {
		t.Fatalf("first join = %v, want created", got)
	}
	if got := reg.Join("r1", "bob", &fakeConn{}); got != domain.JoinJoined {
		t.Fatalf("second join = %v, want joined", got)
	}
	if got := reg.Join("r1", "alice", &fakeConn{}); got != domain.JoinAlreadyMember {
		t.Fatalf("rejoin = %v, want already member", got)
	}
	if got := reg.Join("r1", "carol", &fakeConn{}); got != domain.JoinFull {
		t.Fatalf("third join = %v, want full", got)
	}

	// The rejected participant must not be tracked.
	if _, ok := reg.RoomOf("carol"); ok {
		t.Fatal("rejected participant is tracked as a member")
	}
	snap, ok := reg.Snapshot("r1")
	if !ok {
		t.Fatal("room r1 not found")
	}
	if len(snap.Members) != 2 {
		t.Fatalf("room has %d members, want 2", len(snap.Members))
	}
}

func TestRelayNoEcho(t *testing.T) {
	reg := NewRegistry()
	alice, bob := &fakeConn{}, &fakeConn{}
	reg.Join("r1", "alice", alice)
	reg.Join("r1", "bob", bob)

	if err := reg.Relay("r1", "alice", core.Frame(`{"type":"offer"}`)); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if got := len(bob.received()); got != 1 {
		t.Fatalf("peer received %d frames, want 1", got)
	}
	if got := len(alice.received()); got != 0 {
		t.Fatalf("sender received %d of its own frames, want 0", got)
	}
}

func TestRelayAloneDropsSilently(t *testing.T) {
	reg := NewRegistry()
	reg.Join("r1", "alice", &fakeConn{})

	if err := reg.Relay("r1", "alice", core.Frame("x")); err != nil {
		t.Fatalf("relay with no peer = %v, want nil", err)
	}
}

func TestRelayUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Relay("ghost", "alice", core.Frame("x")); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("relay to unknown room = %v, want ErrRoomNotFound", err)
	}
}

func TestRelayBackpressureDoesNotFail(t *testing.T) {
	reg := NewRegistry()
	bob := &fakeConn{fail: errors.New("send buffer full")}
	reg.Join("r1", "alice", &fakeConn{})
	reg.Join("r1", "bob", bob)

	// A slow peer loses the message; the relay itself stays healthy.
	if err := reg.Relay("r1", "alice", core.Frame("x")); err != nil {
		t.Fatalf("relay to backpressured peer = %v, want nil", err)
	}
}

func TestLeaveIdempotentAndDestroysRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Join("r1", "alice", &fakeConn{})
	reg.Join("r1", "bob", &fakeConn{})

	reg.Leave("alice")
	if snap, ok := reg.Snapshot("r1"); !ok || len(snap.Members) != 1 {
		t.Fatalf("after first leave: room=%v ok=%v, want 1 member", snap, ok)
	}
	reg.Leave("alice") // repeat leave is a no-op
	reg.Leave("bob")
	if _, ok := reg.Snapshot("r1"); ok {
		t.Fatal("empty room was not destroyed")
	}
	if len(reg.List()) != 0 {
		t.Fatal("destroyed room still listed")
	}
}

func TestVacatedSlotIsReusable(t *testing.T) {
	reg := NewRegistry()
	reg.Join("r1", "alice", &fakeConn{})
	reg.Join("r1", "bob", &fakeConn{})
	reg.Leave("bob")

	if got := reg.Join("r1", "carol", &fakeConn{}); got != domain.JoinJoined {
		t.Fatalf("join after leave = %v, want joined", got)
	}
}

func TestConcurrentJoinsSameRoom(t *testing.T) {
	reg := NewRegistry()

	const n = 16
	results := make(chan domain.JoinResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := domain.ParticipantID(fmt.Sprintf("p%d", i))
			results <- reg.Join("contested", pid, &fakeConn{})
		}(i)
	}
	wg.Wait()
	close(results)

	var created, joined, full int
	for res := range results {
		switch res {
		case domain.JoinCreated:
			created++
		case domain.JoinJoined:
			joined++
		case domain.JoinFull:
			full++
		}
	}
	if created != 1 || joined != 1 || full != n-2 {
		t.Fatalf("created=%d joined=%d full=%d, want 1/1/%d", created, joined, full, n-2)
	}
	snap, _ := reg.Snapshot("contested")
	if len(snap.Members) != 2 {
		t.Fatalf("room settled with %d members, want 2", len(snap.Members))
	}
}
