package signaling

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrChannelClosed = errors.New("signaling channel closed")

// Handlers are the inbound callbacks of a Channel. Nil entries are skipped.
// Callbacks run on the channel's read goroutine; heavy work belongs to the
// receiver, not here.
type Handlers struct {
	OnPeerJoined    func()
	OnOffer         func(SessionDescription)
	OnAnswer        func(SessionDescription)
	OnCandidate     func(ICECandidate)
	OnServerMessage func(string)
	OnClosed        func()
}

// Channel is the client end of the signaling relay: one persistent websocket
// per participant, keyed by room on every message.
type Channel struct {
	serverURL string
	handlers  Handlers

	conn     *websocket.Conn
	outgoing chan *Envelope
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewChannel(serverURL string, h Handlers) *Channel {
	return &Channel{
		serverURL: serverURL,
		handlers:  h,
		outgoing:  make(chan *Envelope, 32),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the pumps.
func (c *Channel) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverURL, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Channel) readPump() {
	defer c.teardown()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signaling").Msg("read pump exit")
			return
		}
		env, err := Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "signaling").Msg("bad envelope")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env *Envelope) {
	h := c.handlers
	switch env.Type {
	case TypeNewUserJoined:
		if h.OnPeerJoined != nil {
			h.OnPeerJoined()
		}
	case TypeOffer:
		if env.Offer != nil && h.OnOffer != nil {
			h.OnOffer(*env.Offer)
		}
	case TypeAnswer:
		if env.Answer != nil && h.OnAnswer != nil {
			h.OnAnswer(*env.Answer)
		}
	case TypeIceCandidate:
		if env.Candidate != nil && h.OnCandidate != nil {
			h.OnCandidate(*env.Candidate)
		}
	case TypeMessage:
		if h.OnServerMessage != nil {
			h.OnServerMessage(env.Message)
		}
	default:
		log.Warn().Str("module", "signaling").Str("type", env.Type).Msg("unknown message")
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("module", "signaling").Msg("write pump exit")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Channel) send(env *Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	select {
	case c.outgoing <- env:
		return nil
	default:
		return errors.New("signaling send buffer full")
	}
}

func (c *Channel) JoinRoom(roomID string) error {
	return c.send(&Envelope{Type: TypeJoinRoom, RoomID: roomID})
}

func (c *Channel) LeaveRoom(roomID string) error {
	return c.send(&Envelope{Type: TypeLeaveRoom, RoomID: roomID})
}

func (c *Channel) SendOffer(roomID string, sd SessionDescription) error {
	return c.send(&Envelope{Type: TypeOffer, RoomID: roomID, Offer: &sd})
}

func (c *Channel) SendAnswer(roomID string, sd SessionDescription) error {
	return c.send(&Envelope{Type: TypeAnswer, RoomID: roomID, Answer: &sd})
}

func (c *Channel) SendCandidate(roomID string, cand ICECandidate) error {
	return c.send(&Envelope{Type: TypeIceCandidate, RoomID: roomID, Candidate: &cand})
}

// teardown runs once when the read pump exits, whether by Close or by a
// transport drop. OnClosed fires exactly once.
func (c *Channel) teardown() {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already {
		return
	}
	close(c.done)
	_ = c.conn.Close()
	if c.handlers.OnClosed != nil {
		c.handlers.OnClosed()
	}
}

// Close shuts the channel down. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if c.conn != nil {
		// Closing the socket unblocks the read pump, which runs teardown.
		_ = c.conn.Close()
	}
}
