package feed

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

// scriptConn replays a fixed set of messages, then fails the read.
type scriptConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return 0, nil, io.EOF
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return 1, msg, nil
}

func (c *scriptConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}
func (c *scriptConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *scriptConn) SetPongHandler(h func(string) error) {}
func (c *scriptConn) Close() error                        { return nil }

// scriptDialer hands out one scripted connection, then fails every dial.
type scriptDialer struct {
	conn  *scriptConn
	dials atomic.Int64
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.dials.Add(1) == 1 {
		return d.conn, nil
	}
	return nil, errors.New("endpoint unavailable")
}

func priceMessage(contract string) []byte {
	return []byte(`{"type":"price","contractId":"` + contract + `","serverTimestamp":1700000000000,` +
		`"data":{"price":"100.5","volume":"12.5","timeframe":"5m"}}`)
}

func TestConnectorNormalisesAndReconnects(t *testing.T) {
	dialer := &scriptDialer{conn: &scriptConn{msgs: [][]byte{
		priceMessage("0xabc"),
		[]byte(`{"type":"price"}`),
		priceMessage("0xdef"),
	}}}

	c := NewConnector(Options{
		Name:             "prices",
		Source:           event.SourcePrice,
		URL:              "ws://test",
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     20 * time.Millisecond,
	}, dialer, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var events []event.StreamEvent
	deadline := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case ev := <-c.Events():
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("got %d events before the deadline, want 2", len(events))
		}
	}

	if events[0].ContractID != "0xabc" || events[1].ContractID != "0xdef" {
		t.Fatalf("unexpected event contracts: %q, %q", events[0].ContractID, events[1].ContractID)
	}
	if events[0].Source != event.SourcePrice || events[0].Price == nil {
		t.Fatalf("price event not normalised: %+v", events[0])
	}
	if got := events[0].Price.Price.String(); got != "100.5" {
		t.Fatalf("price = %s, want 100.5", got)
	}
	if got := c.MalformedCount(); got != 1 {
		t.Fatalf("malformed count = %d, want 1", got)
	}

	// The connection died after the scripted messages; the connector must
	// keep retrying rather than give up.
	waitDials := time.After(2 * time.Second)
	for dialer.dials.Load() < 2 {
		select {
		case <-waitDials:
			t.Fatalf("connector did not redial after connection loss")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	// The outbound channel closes only once Run returns.
	for range c.Events() {
	}
}

func TestConnectorStopsOnCancelWhileDialing(t *testing.T) {
	dialer := &scriptDialer{conn: &scriptConn{}}
	dialer.dials.Store(1) // every dial fails

	c := NewConnector(Options{
		Name:             "prices",
		URL:              "ws://test",
		ReconnectInitial: time.Hour, // park in backoff
	}, dialer, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
