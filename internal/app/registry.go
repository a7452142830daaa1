package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// Registry is the in-memory room table of the relay server. One mutex owns
// the whole table, which linearizes concurrent joins/leaves/relays for any
// single room; rooms are small (two members) and operations are pointer
// shuffles, so contention is not a concern at this scale.
//
// Nothing here touches transport resources: connections are adapter-owned
// and the adapter closes them.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*room
	byMember map[domain.ParticipantID]domain.RoomID
}

type room struct {
	id      domain.RoomID
	members []member // ordered, first joiner first, len <= domain.MaxRoomMembers
}

type member struct {
	id   domain.ParticipantID
	conn core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]*room),
		byMember: make(map[domain.ParticipantID]domain.RoomID),
	}
}

// Join adds pid to the room, creating it on first join. A third participant
// is rejected, not queued; rejoining one's own room is an informational
// no-op.
func (r *Registry) Join(roomID domain.RoomID, pid domain.ParticipantID, conn core.SignalConnection) domain.JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		r.rooms[roomID] = &room{id: roomID, members: []member{{id: pid, conn: conn}}}
		r.byMember[pid] = roomID
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("pid", string(pid)).Msg("room created")
		return domain.JoinCreated
	}

	for _, m := range rm.members {
		if m.id == pid {
			return domain.JoinAlreadyMember
		}
	}
	if len(rm.members) >= domain.MaxRoomMembers {
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("pid", string(pid)).Msg("join rejected, room full")
		return domain.JoinFull
	}

	rm.members = append(rm.members, member{id: pid, conn: conn})
	r.byMember[pid] = roomID
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("pid", string(pid)).Msg("member joined")
	return domain.JoinJoined
}

// Relay forwards an opaque signaling payload to the other member of the
// room. The sender never receives its own message back; a missing room is
// domain.ErrRoomNotFound. Delivery is at-most-once: a backpressured peer
// simply misses the message.
func (r *Registry) Relay(roomID domain.RoomID, from domain.ParticipantID, payload core.Frame) error {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return domain.ErrRoomNotFound
	}
	var peer core.SignalConnection
	for _, m := range rm.members {
		if m.id != from {
			peer = m.conn
		}
	}
	r.mu.RUnlock()

	if peer == nil {
		// Alone in the room: nothing to forward to. Not an error, the
		// message is simply dropped (at-most-once).
		return nil
	}
	if err := peer.TrySend(payload); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(roomID)).Msg("relay dropped")
	}
	return nil
}

// Peer returns the other member's connection, if the room exists and has
// one.
func (r *Registry) Peer(roomID domain.RoomID, pid domain.ParticipantID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	for _, m := range rm.members {
		if m.id != pid {
			return m.conn, true
		}
	}
	return nil, false
}

// Leave removes the participant from whatever room it is in and destroys the
// room once empty. Leaving twice, or without having joined, is a no-op.
func (r *Registry) Leave(pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byMember[pid]
	if !ok {
		return
	}
	delete(r.byMember, pid)

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	kept := rm.members[:0]
	for _, m := range rm.members {
		if m.id != pid {
			kept = append(kept, m)
		}
	}
	rm.members = kept
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("pid", string(pid)).Msg("member left")

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room destroyed")
	}
}

// RoomOf reports which room the participant currently occupies.
func (r *Registry) RoomOf(pid domain.ParticipantID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMember[pid]
	return id, ok
}

// Snapshot returns the membership of a single room.
func (r *Registry) Snapshot(roomID domain.RoomID) (domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, false
	}
	out := domain.Room{ID: roomID, Members: make([]domain.ParticipantID, 0, len(rm.members))}
	for _, m := range rm.members {
		out.Members = append(out.Members, m.id)
	}
	return out, true
}

// List returns a read-only view of all rooms for the REST API.
func (r *Registry) List() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		out = append(out, domain.RoomInfo{ID: id, MemberCount: len(rm.members)})
	}
	return out
}
