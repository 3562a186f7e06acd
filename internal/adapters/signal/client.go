package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/wire"
)

type ClientOptions struct {
	URL           string
	Token         string
	MaxAttempts   int
	RedialInitial time.Duration
	RedialMax     time.Duration
	WriteTimeout  time.Duration
}

// Sink receives decoded hub events and the channel's own
// ServiceDisconnected/ServiceReconnected events, in order.
type Sink func(domain.Event) bool

// Client is the agent's end of the signalling channel. After the first
// connect it redials on loss, reporting each attempt to the sink.
type Client struct {
	opts   ClientOptions
	sink   Sink
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(opts ClientOptions, sink Sink, clock clockwork.Clock) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 7
	}
	if opts.RedialInitial <= 0 {
		opts.RedialInitial = time.Second
	}
	if opts.RedialMax <= 0 {
		opts.RedialMax = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = writeWait
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		opts:   opts,
		sink:   sink,
		dialer: websocket.DefaultDialer,
		clock:  clock,
	}
}

// Connect performs the initial dial.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransientSignaling, c.opts.URL, err)
	}
	log.Info().Str("module", "signal").Str("url", c.opts.URL).Msg("signalling connected")
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Run reads until ctx ends or redialling gives up.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	for {
		conn := c.current()
		if conn == nil {
			return fmt.Errorf("%w: not connected", domain.ErrTransientSignaling)
		}
		err := c.readLoop(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("module", "signal").Msg("signalling lost")
		if err := c.redial(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.deliver(data)
	}
}

func (c *Client) deliver(data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad frame from hub")
		return
	}
	switch env.Type {
	case typePong:
		return
	case typeError:
		var f controlFrame
		_ = json.Unmarshal(data, &f)
		log.Warn().Str("module", "signal").Str("error", f.Error).Msg("hub refused event")
		return
	}
	ev, err := wire.DecodeEnvelope(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("undecodable event from hub")
		return
	}
	c.sink(ev)
}

func (c *Client) redial(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RedialInitial
	b.MaxInterval = c.opts.RedialMax
	b.Reset()

	for attempt := 1; ; attempt++ {
		c.sink(domain.ServiceDisconnected{AttemptNumber: attempt})
		if attempt >= c.opts.MaxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", domain.ErrFatalConnectivity, attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(b.NextBackOff()):
		}
		conn, err := c.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Int("attempt", attempt).Msg("redial failed")
			continue
		}
		c.setConn(conn)
		c.sink(domain.ServiceReconnected{})
		return nil
	}
}

// Publish writes ev to the hub. It fails fast while disconnected.
func (c *Client) Publish(ctx context.Context, ev domain.Event) error {
	frame, err := wire.Encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransientSignaling)
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrTransientSignaling, ev.Type(), err)
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.conn = nil
	}
}
