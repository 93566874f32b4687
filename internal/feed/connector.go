package feed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
	"github.com/TreasuredLabs/TreasuredLabs/internal/metrics"
)

// Conn is the subset of a websocket connection the connector drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes a streaming connection to a named source.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials real websocket endpoints.
type WebsocketDialer struct{}

// Dial opens a websocket connection.
func (WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options parameterise one feed connection.
type Options struct {
	Name              string
	Source            event.Source
	URL               string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	Buffer            int
}

// Connector owns one long-lived streaming connection. It normalises inbound
// messages into StreamEvents and keeps the outbound channel alive across
// reconnects, so downstream consumers never resubscribe.
type Connector struct {
	opts      Options
	dialer    Dialer
	logger    zerolog.Logger
	out       chan event.StreamEvent
	malformed atomic.Uint64
}

// NewConnector builds a connector for one named source.
func NewConnector(opts Options, dialer Dialer, logger zerolog.Logger) *Connector {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 10 * time.Second
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 2 * time.Minute
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if dialer == nil {
		dialer = WebsocketDialer{}
	}

	return &Connector{
		opts:   opts,
		dialer: dialer,
		logger: logger.With().Str("component", "feed").Str("source", opts.Name).Logger(),
		out:    make(chan event.StreamEvent, opts.Buffer),
	}
}

// Events exposes the normalised event stream. The channel is closed only when
// Run returns.
func (c *Connector) Events() <-chan event.StreamEvent {
	return c.out
}

// MalformedCount reports how many inbound payloads were dropped.
func (c *Connector) MalformedCount() uint64 {
	return c.malformed.Load()
}

// Run dials, reads, and reconnects until ctx is cancelled. Connection loss is
// never fatal: the connector backs off and retries indefinitely.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.ReconnectInitial
	bo.MaxInterval = c.opts.ReconnectMax
	bo.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dialer.Dial(ctx, c.opts.URL)
		if err != nil {
			wait := bo.NextBackOff()
			metrics.Reconnects.WithLabelValues(c.opts.Name).Inc()
			c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("feed dial failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		c.logger.Info().Str("url", c.opts.URL).Msg("feed connected")

		err = c.serve(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.Reconnects.WithLabelValues(c.opts.Name).Inc()
		c.logger.Warn().Err(err).Msg("feed connection lost; reconnecting")
	}
}

// serve reads from one live connection until it dies. A heartbeat ping runs on
// a fixed interval; a missed pong trips the read deadline and the connection
// is treated as dead.
func (c *Connector) serve(ctx context.Context, conn Conn) error {
	deadline := c.opts.HeartbeatInterval + c.opts.HeartbeatTimeout

	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)

	go func() {
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.HeartbeatTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := event.Parse(raw, time.Now())
		if err != nil {
			c.malformed.Add(1)
			metrics.MalformedEvents.WithLabelValues(c.opts.Name).Inc()
			c.logger.Debug().Err(err).Msg("dropped malformed payload")
			continue
		}

		metrics.EventsReceived.WithLabelValues(c.opts.Name).Inc()

		select {
		case c.out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
