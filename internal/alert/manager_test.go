package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

type memoryHistoryStore struct {
	mu       sync.Mutex
	inserted []Alert
}

func (s *memoryHistoryStore) InsertAlert(ctx context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, a)
	return nil
}

func (s *memoryHistoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func newTestManager(opts ManagerOptions, matcher Matcher, sink Sink, store HistoryStore) (*Manager, *Dispatcher) {
	d := NewDispatcher(DispatcherOptions{}, matcher, sink, zerolog.Nop())
	return NewManager(opts, d, store, zerolog.Nop()), d
}

func breakoutResult(confidence float64, at time.Time) pattern.Result {
	return pattern.Result{Type: "breakout", Confidence: confidence, DetectedAt: at}
}

func TestManagerDeduplicatesInBucket(t *testing.T) {
	matcher := &staticMatcher{matches: []Match{{SubscriberID: "sub-1", SubscriptionID: "s1", Priority: TierNormal}}}
	sink := newRecordingSink()
	store := &memoryHistoryStore{}
	m, d := newTestManager(ManagerOptions{DedupWindow: 5 * time.Minute}, matcher, sink, store)
	defer d.Close()

	base := time.Now().UTC().Truncate(5 * time.Minute)
	m.ProcessPattern(context.Background(), "0xabc", breakoutResult(75, base.Add(30*time.Second)))
	m.ProcessPattern(context.Background(), "0xabc", breakoutResult(82, base.Add(90*time.Second)))

	waitFor(t, time.Second, func() bool { return sink.count("sub-1") == 1 })

	history := m.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Confidence != 82 {
		t.Fatalf("suppressed duplicate should refresh confidence upward, got %v", history[0].Confidence)
	}
	if store.count() != 1 {
		t.Fatalf("duplicate must not be persisted twice, got %d inserts", store.count())
	}
}

func TestManagerSeparateBucketsRedeliver(t *testing.T) {
	matcher := &staticMatcher{matches: []Match{{SubscriberID: "sub-1", SubscriptionID: "s1", Priority: TierNormal}}}
	sink := newRecordingSink()
	m, d := newTestManager(ManagerOptions{DedupWindow: time.Minute}, matcher, sink, nil)
	defer d.Close()

	base := time.Now().UTC().Truncate(time.Minute)
	m.ProcessPattern(context.Background(), "0xabc", breakoutResult(75, base))
	m.ProcessPattern(context.Background(), "0xabc", breakoutResult(75, base.Add(2*time.Minute)))

	waitFor(t, time.Second, func() bool { return sink.count("sub-1") == 2 })
}

func TestManagerRejectsUnknownPatternType(t *testing.T) {
	m, d := newTestManager(ManagerOptions{}, &staticMatcher{}, newRecordingSink(), nil)
	defer d.Close()

	m.ProcessPattern(context.Background(), "0xabc", pattern.Result{Type: "moon", Confidence: 99, DetectedAt: time.Now()})
	if len(m.History()) != 0 {
		t.Fatalf("an unroutable pattern type must not create an alert")
	}
}

func TestManagerRiskThreshold(t *testing.T) {
	matcher := &staticMatcher{matches: []Match{{SubscriberID: "sub-1", SubscriptionID: "s1", Priority: TierNormal}}}
	sink := newRecordingSink()
	m, d := newTestManager(ManagerOptions{RiskAlertThreshold: 50}, matcher, sink, nil)
	defer d.Close()

	m.ProcessRisk(context.Background(), &scanner.Analysis{
		ContractID:  "0xsafe",
		SafetyScore: 80,
		ComputedAt:  time.Now().UTC(),
	})
	if len(m.History()) != 0 {
		t.Fatalf("a score above the threshold must not alert")
	}

	m.ProcessRisk(context.Background(), &scanner.Analysis{
		ContractID:  "0xrisky",
		SafetyScore: 30,
		ComputedAt:  time.Now().UTC(),
	})

	waitFor(t, time.Second, func() bool { return sink.count("sub-1") == 1 })
	history := m.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Kind != KindRisk {
		t.Fatalf("kind = %q, want %q", history[0].Kind, KindRisk)
	}
	if history[0].Confidence != 70 {
		t.Fatalf("confidence = %v, want the inverse of the safety score", history[0].Confidence)
	}
	if history[0].Priority != TierNormal {
		t.Fatalf("priority = %v, want %v", history[0].Priority, TierNormal)
	}
}

func TestManagerKnownRugForcesHighPriority(t *testing.T) {
	m, d := newTestManager(ManagerOptions{RiskAlertThreshold: 50}, &staticMatcher{}, newRecordingSink(), nil)
	defer d.Close()

	m.ProcessRisk(context.Background(), &scanner.Analysis{
		ContractID:  "0xrug",
		SafetyScore: 0,
		RugPullRisk: 100,
		KnownRug:    true,
		ComputedAt:  time.Now().UTC(),
	})

	history := m.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Priority != TierHigh {
		t.Fatalf("a deny-listed contract must alert at high priority, got %v", history[0].Priority)
	}
}

func TestManagerHistoryCapacity(t *testing.T) {
	m, d := newTestManager(ManagerOptions{HistoryCapacity: 3, DedupWindow: time.Minute}, &staticMatcher{}, newRecordingSink(), nil)
	defer d.Close()

	base := time.Now().UTC().Truncate(time.Minute)
	for i := 0; i < 5; i++ {
		m.ProcessPattern(context.Background(), "0xabc", breakoutResult(75, base.Add(time.Duration(i)*time.Minute)))
	}

	history := m.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want the capacity of 3", len(history))
	}
	if !history[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("oldest entries should be evicted first, kept from %v", history[0].Timestamp)
	}
}

func TestManagerEvictionKeepsDedupInsideBucket(t *testing.T) {
	matcher := &staticMatcher{matches: []Match{{SubscriberID: "sub-1", SubscriptionID: "s1", Priority: TierNormal}}}
	sink := newRecordingSink()
	store := &memoryHistoryStore{}
	m, d := newTestManager(ManagerOptions{HistoryCapacity: 1, DedupWindow: 10 * time.Minute}, matcher, sink, store)
	defer d.Close()

	base := time.Now().UTC().Truncate(10 * time.Minute)
	first := breakoutResult(75, base.Add(10*time.Second))
	m.ProcessPattern(context.Background(), "0xaaa", first)
	m.ProcessPattern(context.Background(), "0xbbb", breakoutResult(80, base.Add(20*time.Second)))

	if store.count() != 2 {
		t.Fatalf("expected 2 persisted alerts, got %d", store.count())
	}
	history := m.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want the capacity of 1", len(history))
	}
	if history[0].ContractID != "0xbbb" {
		t.Fatalf("kept contract = %q, want the newer 0xbbb", history[0].ContractID)
	}

	// The first alert fell out of history for capacity, but its dedup bucket
	// is still open: re-detecting it must not produce a second delivery.
	m.ProcessPattern(context.Background(), "0xaaa", first)
	if store.count() != 2 {
		t.Fatalf("an evicted alert re-detected inside its bucket was persisted again, %d inserts", store.count())
	}
	if got := len(m.History()); got != 1 {
		t.Fatalf("history length = %d after re-detection, want 1", got)
	}

	waitFor(t, time.Second, func() bool { return sink.count("sub-1") == 2 })
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       Tier
	}{
		{95, TierHigh},
		{90, TierHigh},
		{75, TierNormal},
		{70, TierNormal},
		{50, TierLow},
	}
	for _, tc := range cases {
		if got := priorityFor(tc.confidence); got != tc.want {
			t.Errorf("priorityFor(%v) = %v, want %v", tc.confidence, got, tc.want)
		}
	}
}
