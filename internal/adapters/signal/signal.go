// Package signal carries hub events over websockets: the server controller
// that attaches sockets to the hub, and the client the agent dials with.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/app/hub"
	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Hub     *hub.Hub
	Limiter *EventRateLimiter
	opts    Options
}

func NewSignalWSController(h *hub.Hub, limiter *EventRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Hub:     h,
		Limiter: limiter,
		opts:    opts.withDefaults(),
	}
}

// WsSignalConn is the hub's view of one socket. Frames queue on a bounded
// channel drained by the write pump; a full queue is reported, never waited on.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

// HandleSignal upgrades the request and attaches the socket to the hub under
// a fresh connection id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, identity domain.Identity) {
	id := core.ConnectionID(uuid.NewString())
	log.Info().
		Str("module", "signal").
		Str("conn", string(id)).
		Str("client", c.GetString("client_token")).
		Str("identity", identity.Name).
		Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.OnConnect(ctx, id, identity, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
