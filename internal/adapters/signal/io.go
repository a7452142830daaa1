package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

func (ctl *RelayController) writePump(ctx context.Context, c *wsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *RelayController) readPump(ctx context.Context, pid domain.ParticipantID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump closing")
		ctl.onDisconnect(pid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(pid, c, data)
		}
	}
}

func (ctl *RelayController) handleSignal(pid domain.ParticipantID, c *wsSignalConn, data []byte) {
	var env struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case signaling.TypeJoinRoom:
		ctl.handleJoin(pid, c, domain.RoomID(env.RoomID))
	case signaling.TypeLeaveRoom:
		ctl.handleLeave(pid, c, domain.RoomID(env.RoomID))
	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeIceCandidate:
		ctl.handleRelay(pid, c, domain.RoomID(env.RoomID), data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *RelayController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// sendMessage delivers an informational/error text to one client. Membership
// errors never close the connection.
func (ctl *RelayController) sendMessage(c core.SignalConnection, text string) {
	ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypeMessage, Message: text})
}
