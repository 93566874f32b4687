package pattern

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
	"github.com/TreasuredLabs/TreasuredLabs/internal/metrics"
)

// ResultHandler receives every detection the engine produces.
type ResultHandler func(contractID string, res Result)

// Engine consumes normalised stream events and evaluates every registered
// detector against per-contract windows. Evaluation for different contracts
// runs concurrently; events for the same contract are serialised by the
// contract's own lock so window updates never interleave.
type Engine struct {
	detectors []Detector
	handler   ResultHandler
	logger    zerolog.Logger

	mu        sync.Mutex
	contracts map[string]*contractWindows
}

type contractWindows struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// NewEngine builds an engine over a detector registry.
func NewEngine(detectors []Detector, handler ResultHandler, logger zerolog.Logger) *Engine {
	return &Engine{
		detectors: detectors,
		handler:   handler,
		logger:    logger.With().Str("component", "pattern_engine").Logger(),
		contracts: make(map[string]*contractWindows),
	}
}

// DefaultDetectors returns the built-in registry with deployed defaults.
func DefaultDetectors() []Detector {
	return []Detector{
		NewBreakout(DefaultBreakoutConfig()),
		NewAccumulation(DefaultAccumulationConfig()),
		NewDistribution(DefaultDistributionConfig()),
		NewWhale(DefaultWhaleConfig()),
	}
}

// Handle updates the contract's windows with the event and evaluates every
// detector against the updated state.
func (e *Engine) Handle(ev event.StreamEvent) {
	state := e.state(ev.ContractID)

	state.mu.Lock()
	defer state.mu.Unlock()

	now := ev.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, det := range e.detectors {
		win, ok := state.windows[det.Name()]
		if !ok {
			win = NewWindow(det.Horizon())
			state.windows[det.Name()] = win
		}
		win.Add(ev, now)

		res, detected := det.Evaluate(win, now)
		if !detected {
			continue
		}

		metrics.PatternsDetected.WithLabelValues(res.Type).Inc()
		e.logger.Debug().
			Str("contract", ev.ContractID).
			Str("pattern", res.Type).
			Float64("confidence", res.Confidence).
			Msg("pattern detected")

		if e.handler != nil {
			e.handler(ev.ContractID, res)
		}
	}
}

// Contracts reports which contracts currently hold windowed data.
func (e *Engine) Contracts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.contracts))
	for id := range e.contracts {
		out = append(out, id)
	}
	return out
}

func (e *Engine) state(contractID string) *contractWindows {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.contracts[contractID]
	if !ok {
		state = &contractWindows{windows: make(map[string]*Window)}
		e.contracts[contractID] = state
	}
	return state
}
