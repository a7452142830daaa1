package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/app"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// RelayController terminates one websocket per participant and forwards
// negotiation traffic between the two members of a room.
type RelayController struct {
	Registry    *app.Registry
	joinLimiter *JoinRateLimiter
}

func NewRelayController(reg *app.Registry) *RelayController {
	return &RelayController{
		Registry:    reg,
		joinLimiter: NewJoinRateLimiter(10, 10*time.Second),
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps. The
// participant identity is the client token cookie set by the router.
func (ctl *RelayController) HandleSignal(ctx context.Context, c *gin.Context) {
	pid := domain.ParticipantID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	}()
	go ctl.readPump(ctx, pid, conn)
}
