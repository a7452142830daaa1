// Package negotiate owns the per-peer offer/answer state machine. It drives
// a peer-connection engine through a narrow PeerHandle seam and emits its
// outbound messages through a Sender, so the machine itself never touches
// sockets or pion types.
package negotiate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("negotiator closed")

// NegotiationError wraps a malformed payload or an engine apply failure. The
// state machine stays in its last state; the caller decides whether to retry
// or close.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string { return fmt.Sprintf("negotiation %s: %v", e.Op, e.Err) }
func (e *NegotiationError) Unwrap() error { return e.Err }

type State int

const (
	StateIdle State = iota
	StateOffering  // Negotiating as offerer: local offer out, waiting for answer
	StateAnswering // Negotiating as answerer: applying a remote offer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "negotiating(offerer)"
	case StateAnswering:
		return "negotiating(answerer)"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// PeerHandle is the negotiation surface of the underlying peer-connection
// engine. All calls are synchronous; the machine transitions only after a
// call has returned, never speculatively.
type PeerHandle interface {
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)
	SetLocalDescription(signaling.SessionDescription) error
	SetRemoteDescription(signaling.SessionDescription) error
	Rollback() error
	AddICECandidate(signaling.ICECandidate) error
	Close() error
}

// Sender carries outbound negotiation messages to the peer.
type Sender interface {
	SendOffer(signaling.SessionDescription) error
	SendAnswer(signaling.SessionDescription) error
}

// Negotiator is one peer connection's negotiation state machine.
//
// Glare rule: the politeness of each side is fixed for the session. The
// participant who created the room (it observes "new user joined") is
// impolite; the later joiner is polite. On simultaneous offers the polite
// side rolls back its own offer and answers the remote one, the impolite
// side ignores the incoming offer and waits for its answer. Exactly one side
// is polite, so the winner is deterministic.
type Negotiator struct {
	mu     sync.Mutex
	state  State
	polite bool

	pendingRenegotiate bool
	remoteApplied      bool
	candBuf            []signaling.ICECandidate

	handle PeerHandle
	sender Sender
}

func New(handle PeerHandle, sender Sender, polite bool) *Negotiator {
	return &Negotiator{
		state:  StateIdle,
		polite: polite,
		handle: handle,
		sender: sender,
	}
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) Polite() bool { return n.polite }

// PendingRenegotiation reports whether a renegotiation request is parked
// behind an in-flight round.
func (n *Negotiator) PendingRenegotiation() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pendingRenegotiate
}

// StartNegotiation produces and emits a local offer. Valid from Idle and
// Stable; while a round is in flight it records the request instead, to be
// consumed once the machine reaches Stable again.
func (n *Negotiator) StartNegotiation() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateClosed:
		return ErrClosed
	case StateOffering, StateAnswering:
		n.pendingRenegotiate = true
		log.Info().Str("module", "negotiate").Str("state", n.state.String()).Msg("renegotiation parked behind in-flight round")
		return nil
	}
	return n.startLocked()
}

func (n *Negotiator) startLocked() error {
	offer, err := n.handle.CreateOffer()
	if err != nil {
		return &NegotiationError{Op: "create offer", Err: err}
	}
	if err := n.handle.SetLocalDescription(offer); err != nil {
		return &NegotiationError{Op: "set local offer", Err: err}
	}
	n.state = StateOffering
	if err := n.sender.SendOffer(offer); err != nil {
		return &NegotiationError{Op: "send offer", Err: err}
	}
	log.Info().Str("module", "negotiate").Msg("offer sent")
	return nil
}

// HandleRemoteOffer applies a remote offer and emits the answer. In the
// glare case (we are mid-offer ourselves) the polite side rolls back first
// and the impolite side drops the offer on the floor.
func (n *Negotiator) HandleRemoteOffer(sd signaling.SessionDescription) error {
	if err := validateDescription(sd, "offer"); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateClosed:
		return ErrClosed
	case StateAnswering:
		return &NegotiationError{Op: "remote offer", Err: errors.New("already answering an offer")}
	case StateOffering:
		if !n.polite {
			log.Info().Str("module", "negotiate").Msg("glare: impolite side ignoring remote offer")
			return nil
		}
		if err := n.handle.Rollback(); err != nil {
			return &NegotiationError{Op: "rollback", Err: err}
		}
		log.Info().Str("module", "negotiate").Msg("glare: rolled back local offer")
	}
	return n.answerLocked(sd)
}

func (n *Negotiator) answerLocked(sd signaling.SessionDescription) error {
	if err := n.handle.SetRemoteDescription(sd); err != nil {
		return &NegotiationError{Op: "set remote offer", Err: err}
	}
	n.state = StateAnswering
	n.drainCandidatesLocked()

	answer, err := n.handle.CreateAnswer()
	if err != nil {
		return &NegotiationError{Op: "create answer", Err: err}
	}
	if err := n.handle.SetLocalDescription(answer); err != nil {
		return &NegotiationError{Op: "set local answer", Err: err}
	}
	if err := n.sender.SendAnswer(answer); err != nil {
		return &NegotiationError{Op: "send answer", Err: err}
	}
	log.Info().Str("module", "negotiate").Msg("answer sent")
	return n.becomeStableLocked()
}

// HandleRemoteAnswer completes an offerer round. Only valid while our offer
// is outstanding.
func (n *Negotiator) HandleRemoteAnswer(sd signaling.SessionDescription) error {
	if err := validateDescription(sd, "answer"); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return ErrClosed
	}
	if n.state != StateOffering {
		return &NegotiationError{Op: "remote answer", Err: fmt.Errorf("unexpected in state %s", n.state)}
	}
	if err := n.handle.SetRemoteDescription(sd); err != nil {
		return &NegotiationError{Op: "set remote answer", Err: err}
	}
	n.drainCandidatesLocked()
	return n.becomeStableLocked()
}

// becomeStableLocked finishes a round and immediately starts the next one if
// a renegotiation was requested mid-flight.
func (n *Negotiator) becomeStableLocked() error {
	n.state = StateStable
	log.Info().Str("module", "negotiate").Msg("stable")
	if n.pendingRenegotiate {
		n.pendingRenegotiate = false
		return n.startLocked()
	}
	return nil
}

// HandleRemoteCandidate applies the candidate if a remote description has
// been accepted, otherwise buffers it. Buffered candidates are applied in
// arrival order as soon as a remote description lands.
func (n *Negotiator) HandleRemoteCandidate(cand signaling.ICECandidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return ErrClosed
	}
	if !n.remoteApplied {
		n.candBuf = append(n.candBuf, cand)
		log.Debug().Str("module", "negotiate").Int("buffered", len(n.candBuf)).Msg("candidate buffered")
		return nil
	}
	if err := n.handle.AddICECandidate(cand); err != nil {
		return &NegotiationError{Op: "add candidate", Err: err}
	}
	return nil
}

func (n *Negotiator) drainCandidatesLocked() {
	n.remoteApplied = true
	for _, cand := range n.candBuf {
		if err := n.handle.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "negotiate").Msg("buffered candidate apply")
		}
	}
	n.candBuf = nil
}

// Close releases the underlying connection. Further calls are no-ops.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return
	}
	n.state = StateClosed
	n.candBuf = nil
	n.pendingRenegotiate = false
	if err := n.handle.Close(); err != nil {
		log.Error().Err(err).Str("module", "negotiate").Msg("close")
	}
}

// validateDescription rejects malformed payloads before they reach the
// engine: wrong type tag or SDP that does not parse.
func validateDescription(sd signaling.SessionDescription, wantType string) error {
	if sd.Type != wantType {
		return &NegotiationError{Op: "validate", Err: fmt.Errorf("expected %s, got %q", wantType, sd.Type)}
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(sd.SDP)); err != nil {
		return &NegotiationError{Op: "validate", Err: fmt.Errorf("malformed sdp: %w", err)}
	}
	return nil
}
