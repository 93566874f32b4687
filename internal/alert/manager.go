package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/metrics"
	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// HistoryStore persists delivered alerts for auditing. Optional; a nil store
// keeps history in memory only.
type HistoryStore interface {
	InsertAlert(ctx context.Context, a Alert) error
}

// ManagerOptions tune dedup and history retention.
type ManagerOptions struct {
	DedupWindow        time.Duration
	HistoryCapacity    int
	HistoryMaxAge      time.Duration
	RiskAlertThreshold float64
}

// Manager folds pattern detections and risk analyses into alerts,
// deduplicates them, keeps bounded history, and hands survivors to the
// dispatcher.
type Manager struct {
	opts       ManagerOptions
	dispatcher *Dispatcher
	store      HistoryStore
	logger     zerolog.Logger

	mu      sync.Mutex
	history []*Alert
	byID    map[string]*Alert
	retired []retiredID
}

// retiredID is an alert evicted from history while its dedup bucket was
// still open. Its byID entry survives until expires so the alert cannot be
// re-delivered inside its own window.
type retiredID struct {
	id      string
	expires time.Time
}

// NewManager builds an alert manager.
func NewManager(opts ManagerOptions, dispatcher *Dispatcher, store HistoryStore, logger zerolog.Logger) *Manager {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 5 * time.Minute
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = 1000
	}
	if opts.HistoryMaxAge <= 0 {
		opts.HistoryMaxAge = 24 * time.Hour
	}
	if opts.RiskAlertThreshold <= 0 {
		opts.RiskAlertThreshold = scanner.HighRiskCeiling
	}

	return &Manager{
		opts:       opts,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.With().Str("component", "alert_manager").Logger(),
		byID:       make(map[string]*Alert),
	}
}

// ProcessPattern builds and routes an alert from one pattern detection.
func (m *Manager) ProcessPattern(ctx context.Context, contractID string, res pattern.Result) {
	kind, err := KindForPattern(res.Type)
	if err != nil {
		m.logger.Warn().Err(err).Msg("detection with unroutable pattern type")
		return
	}

	ts := res.DetectedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	m.process(ctx, Alert{
		ID:         ComputeID(kind, contractID, ts, m.opts.DedupWindow),
		Kind:       kind,
		ContractID: contractID,
		Confidence: res.Confidence,
		Patterns:   []pattern.Result{res},
		Timestamp:  ts,
		Priority:   priorityFor(res.Confidence),
	})
}

// ProcessRisk routes a risk alert when a scan lands below the configured
// safety threshold. Confidence is the inverse of the safety score.
func (m *Manager) ProcessRisk(ctx context.Context, analysis *scanner.Analysis) {
	if analysis == nil || analysis.SafetyScore >= m.opts.RiskAlertThreshold {
		return
	}

	ts := analysis.ComputedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	confidence := 100 - analysis.SafetyScore
	priority := priorityFor(confidence)
	if analysis.KnownRug {
		priority = TierHigh
	}

	m.process(ctx, Alert{
		ID:         ComputeID(KindRisk, analysis.ContractID, ts, m.opts.DedupWindow),
		Kind:       KindRisk,
		ContractID: analysis.ContractID,
		Confidence: confidence,
		Risk:       analysis,
		Timestamp:  ts,
		Priority:   priority,
	})
}

// History returns a copy of the retained alerts, newest last.
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.history))
	for _, a := range m.history {
		out = append(out, *a)
	}
	return out
}

// process applies dedup, appends to history, persists, and dispatches.
// A duplicate inside the dedup bucket only refreshes the existing record.
func (m *Manager) process(ctx context.Context, candidate Alert) {
	m.mu.Lock()
	if existing, ok := m.byID[candidate.ID]; ok {
		if candidate.Confidence > existing.Confidence {
			existing.Confidence = candidate.Confidence
		}
		existing.Timestamp = candidate.Timestamp
		m.mu.Unlock()

		metrics.AlertsSuppressed.Inc()
		m.logger.Debug().Str("alert", candidate.ID).Msg("duplicate alert suppressed")
		return
	}

	stored := candidate
	m.history = append(m.history, &stored)
	m.byID[stored.ID] = &stored
	m.evictLocked(time.Now())
	m.mu.Unlock()

	metrics.AlertsTriggered.WithLabelValues(string(candidate.Kind)).Inc()
	m.logger.Info().
		Str("alert", candidate.ID).
		Str("kind", string(candidate.Kind)).
		Str("contract", candidate.ContractID).
		Float64("confidence", candidate.Confidence).
		Msg("alert created")

	if m.store != nil {
		if err := m.store.InsertAlert(ctx, candidate); err != nil {
			m.logger.Error().Err(err).Str("alert", candidate.ID).Msg("failed to persist alert")
		}
	}

	if m.dispatcher != nil {
		m.dispatcher.Dispatch(candidate)
	}
}

// evictLocked drops history entries beyond capacity or max age. Callers hold
// m.mu.
func (m *Manager) evictLocked(now time.Time) {
	released := 0
	for released < len(m.retired) && !m.retired[released].expires.After(now) {
		delete(m.byID, m.retired[released].id)
		released++
	}
	if released > 0 {
		m.retired = append(m.retired[:0], m.retired[released:]...)
	}

	cutoff := now.Add(-m.opts.HistoryMaxAge)

	drop := 0
	for drop < len(m.history) && m.history[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if extra := len(m.history) - drop - m.opts.HistoryCapacity; extra > 0 {
		drop += extra
	}
	if drop == 0 {
		return
	}

	for _, a := range m.history[:drop] {
		expires := a.Timestamp.UTC().Truncate(m.opts.DedupWindow).Add(m.opts.DedupWindow)
		if expires.After(now) {
			m.retired = append(m.retired, retiredID{id: a.ID, expires: expires})
			continue
		}
		delete(m.byID, a.ID)
	}
	m.history = append(m.history[:0], m.history[drop:]...)
}

func priorityFor(confidence float64) Tier {
	switch {
	case confidence >= 90:
		return TierHigh
	case confidence >= 70:
		return TierNormal
	default:
		return TierLow
	}
}
