package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// handleRelay forwards offer/answer/candidate payloads verbatim to the other
// room member. The sender never gets its own message echoed back, and
// nothing is persisted.
func (ctl *RelayController) handleRelay(pid domain.ParticipantID, conn *wsSignalConn, roomID domain.RoomID, data []byte) {
	if err := ctl.Registry.Relay(roomID, pid, data); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			ctl.sendMessage(conn, "Room not found")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("relay")
	}
}
