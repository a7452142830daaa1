package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

func (ctl *RelayController) handleJoin(pid domain.ParticipantID, conn *wsSignalConn, roomID domain.RoomID) {
	if roomID == "" {
		ctl.sendMessage(conn, "Room id is required")
		return
	}
	if !ctl.joinLimiter.Allow(pid) {
		log.Warn().Str("module", "signal").Str("pid", string(pid)).Msg("join rate limited")
		ctl.sendMessage(conn, "Too many join attempts")
		return
	}

	res := ctl.Registry.Join(roomID, pid, conn)
	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("room", string(roomID)).Str("result", res.String()).Msg("join room")

	switch res {
	case domain.JoinCreated:
		// First member: nothing to announce yet.
	case domain.JoinJoined:
		// Tell the member who was already waiting.
		if peer, ok := ctl.Registry.Peer(roomID, pid); ok {
			ctl.sendJSON(peer, signaling.Envelope{Type: signaling.TypeNewUserJoined})
		}
	case domain.JoinAlreadyMember:
		ctl.sendMessage(conn, "User is already in this room")
	case domain.JoinFull:
		ctl.sendMessage(conn, "Room is full")
	}
}

func (ctl *RelayController) handleLeave(pid domain.ParticipantID, conn *wsSignalConn, roomID domain.RoomID) {
	if _, ok := ctl.Registry.Snapshot(roomID); !ok {
		ctl.sendMessage(conn, "Room not found")
		return
	}
	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("room", string(roomID)).Msg("leave room")
	ctl.Registry.Leave(pid)
}

// onDisconnect runs when the socket drops for any reason. Leave is
// idempotent, so a client that already sent "leave room" is fine.
func (ctl *RelayController) onDisconnect(pid domain.ParticipantID) {
	ctl.Registry.Leave(pid)
	ctl.joinLimiter.Forget(pid)
}
