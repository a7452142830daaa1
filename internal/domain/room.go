// Package domain contains entity without logic, just meta-data
package domain

import "errors"

// MaxRoomMembers is the hard cap of a peer-to-peer room. The relay only ever
// forwards to "the other" member, so anything above two is rejected.
const MaxRoomMembers = 2

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrNotInRoom    = errors.New("participant is not in a room")
)

type (
	RoomID        string
	ParticipantID string
)

// Room is a snapshot of a signaling room: its caller-supplied identifier and
// the ordered member list (first joiner first).
type Room struct {
	ID      RoomID
	Members []ParticipantID
}

// JoinResult classifies the outcome of a join attempt.
type JoinResult int

const (
	JoinCreated JoinResult = iota
	JoinJoined
	JoinAlreadyMember
	JoinFull
)

func (r JoinResult) String() string {
	switch r {
	case JoinCreated:
		return "created"
	case JoinJoined:
		return "joined"
	case JoinAlreadyMember:
		return "already_member"
	case JoinFull:
		return "full"
	}
	return "unknown"
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          RoomID `json:"id"`
	MemberCount int    `json:"member_count"`
}
