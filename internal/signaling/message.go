// Package signaling defines the wire protocol spoken between call clients
// and the relay server, plus the client-side channel that speaks it.
//
// Delivery is at-most-once: the relay forwards each message to the other
// room member exactly once and never buffers or retries. A signaling message
// lost in transit (for example an ICE candidate dropped mid-transfer) is
// gone; recovering from that may require a fresh negotiation round.
package signaling

import "encoding/json"

// Message type values. These are wire-visible and match what every client of
// the relay sends, down to the embedded spaces.
const (
	TypeJoinRoom      = "join room"
	TypeNewUserJoined = "new user joined"
	TypeOffer         = "offer"
	TypeAnswer        = "answer"
	TypeIceCandidate  = "new ice candidate"
	TypeLeaveRoom     = "leave room"
	TypeMessage       = "message"
)

// SessionDescription is an offer or answer. Immutable once created; each one
// belongs to exactly one negotiation round.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a single network path proposal.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// Envelope is the one JSON object shape used for every signaling message.
// Exactly one of the optional payload fields is set, depending on Type.
type Envelope struct {
	Type      string              `json:"type"`
	RoomID    string              `json:"roomId,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *ICECandidate       `json:"iceCandidate,omitempty"`
	Message   string              `json:"message,omitempty"`
}

func (e *Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
