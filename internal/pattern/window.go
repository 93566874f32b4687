package pattern

import (
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

// Window is an ordered sequence of recent stream events for one contract and
// one detector, bounded by the detector's horizon. Windows are owned
// exclusively by the engine; detectors only read them.
type Window struct {
	horizon time.Duration
	events  []event.StreamEvent
}

// NewWindow builds an empty window with the given time horizon.
func NewWindow(horizon time.Duration) *Window {
	return &Window{horizon: horizon}
}

// Add appends an event and evicts everything older than now-horizon, keeping
// the window aligned to the observation horizon.
func (w *Window) Add(ev event.StreamEvent, now time.Time) {
	w.events = append(w.events, ev)
	w.Evict(now)
}

// Evict drops events that fell outside the horizon.
func (w *Window) Evict(now time.Time) {
	cutoff := now.Add(-w.horizon)
	idx := 0
	for idx < len(w.events) && w.events[idx].ReceivedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.events = append(w.events[:0], w.events[idx:]...)
	}
}

// Len reports the number of events currently inside the horizon.
func (w *Window) Len() int {
	return len(w.events)
}

// Span is the time covered between the oldest and newest event.
func (w *Window) Span() time.Duration {
	if len(w.events) < 2 {
		return 0
	}
	return w.events[len(w.events)-1].ReceivedAt.Sub(w.events[0].ReceivedAt)
}

// Prices returns all price points in arrival order.
func (w *Window) Prices() []event.PricePoint {
	var out []event.PricePoint
	for _, ev := range w.events {
		if ev.Price != nil {
			out = append(out, *ev.Price)
		}
	}
	return out
}

// PricesByTimeframe groups price points per sampling timeframe.
func (w *Window) PricesByTimeframe() map[string][]event.PricePoint {
	out := make(map[string][]event.PricePoint)
	for _, ev := range w.events {
		if ev.Price != nil {
			out[ev.Price.Timeframe] = append(out[ev.Price.Timeframe], *ev.Price)
		}
	}
	return out
}

// Trades returns all transaction payloads in arrival order.
func (w *Window) Trades() []event.Trade {
	var out []event.Trade
	for _, ev := range w.events {
		if ev.Trade != nil {
			out = append(out, *ev.Trade)
		}
	}
	return out
}

// Transfers returns all whale-transfer payloads in arrival order.
func (w *Window) Transfers() []event.Transfer {
	var out []event.Transfer
	for _, ev := range w.events {
		if ev.Transfer != nil {
			out = append(out, *ev.Transfer)
		}
	}
	return out
}
