package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/metrics"
)

// Match is one subscription that should receive an alert.
type Match struct {
	SubscriberID   string
	SubscriptionID string
	Priority       Tier
}

// Matcher finds the subscriptions whose filters accept an alert.
type Matcher interface {
	Match(contractID string, kind Kind, confidence float64) []Match
}

// Sink delivers one alert to one subscriber over some transport.
type Sink interface {
	Deliver(ctx context.Context, subscriberID string, a Alert) error
}

// DispatcherOptions tune fan-out behaviour.
type DispatcherOptions struct {
	QueueSize       int
	PendingCapacity int
	DeliveryTimeout time.Duration
	RateLimitWindow time.Duration
	RateLimitCap    int
}

// Dispatcher fans alerts out to matching subscribers. Each subscriber owns a
// bounded queue drained by its own worker, so a slow sink never blocks the
// detection path or other subscribers. Deliveries over the per-kind rate cap
// are parked in a bounded FIFO and flushed once the window resets.
type Dispatcher struct {
	opts    DispatcherOptions
	matcher Matcher
	sink    Sink
	limiter *RateLimiter
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*subscriberQueue
	closed bool
}

type subscriberQueue struct {
	ch      chan Alert
	mu      sync.Mutex
	pending []Alert
}

// NewDispatcher builds a dispatcher over a matcher and a delivery sink.
func NewDispatcher(opts DispatcherOptions, matcher Matcher, sink Sink, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.PendingCapacity <= 0 {
		opts.PendingCapacity = 128
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	if opts.RateLimitCap <= 0 {
		opts.RateLimitCap = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		opts:    opts,
		matcher: matcher,
		sink:    sink,
		limiter: NewRateLimiter(opts.RateLimitWindow, opts.RateLimitCap),
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string]*subscriberQueue),
	}
}

// Dispatch hands an alert to every matching subscriber, highest priority
// tier first. Tier ordering is best effort: it governs enqueue order only,
// and each subscriber's worker drains its own queue independently, so a
// lower-tier delivery can land before a higher-tier one under load.
func (d *Dispatcher) Dispatch(a Alert) {
	matches := d.matcher.Match(a.ContractID, a.Kind, a.Confidence)
	if len(matches) == 0 {
		return
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority > matches[j].Priority
	})

	for _, match := range matches {
		d.enqueue(match.SubscriberID, a)
	}
}

// Close stops all workers. Queued alerts not yet delivered are abandoned.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(subscriberID string, a Alert) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[subscriberID]
	if !ok {
		q = &subscriberQueue{ch: make(chan Alert, d.opts.QueueSize)}
		d.queues[subscriberID] = q
		d.wg.Add(1)
		go d.worker(subscriberID, q)
	}
	d.mu.Unlock()

	select {
	case q.ch <- a:
	default:
		// Queue full: subscriber is too far behind, drop rather than block
		// the detection path.
		metrics.AlertsDelivered.WithLabelValues("dropped").Inc()
		d.logger.Warn().Str("subscriber", subscriberID).Str("alert", a.ID).Msg("subscriber queue full; alert dropped")
	}
}

func (d *Dispatcher) worker(subscriberID string, q *subscriberQueue) {
	defer d.wg.Done()

	flushEvery := d.opts.RateLimitWindow / 4
	if flushEvery < 50*time.Millisecond {
		flushEvery = 50 * time.Millisecond
	}
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case a := <-q.ch:
			d.attempt(subscriberID, q, a)
		case <-ticker.C:
			d.flushPending(subscriberID, q)
		}
	}
}

// attempt delivers immediately when under the rate cap, otherwise parks the
// alert in the pending FIFO for later delivery.
func (d *Dispatcher) attempt(subscriberID string, q *subscriberQueue, a Alert) {
	if !d.limiter.Allow(subscriberID, a.Kind, time.Now()) {
		q.mu.Lock()
		if len(q.pending) < d.opts.PendingCapacity {
			q.pending = append(q.pending, a)
			metrics.AlertsDelivered.WithLabelValues("deferred").Inc()
		} else {
			metrics.AlertsDelivered.WithLabelValues("dropped").Inc()
			d.logger.Warn().Str("subscriber", subscriberID).Str("alert", a.ID).Msg("pending queue full; alert dropped")
		}
		q.mu.Unlock()
		return
	}
	d.deliver(subscriberID, a)
}

// flushPending drains parked alerts for every kind whose window has reset.
func (d *Dispatcher) flushPending(subscriberID string, q *subscriberQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		a := q.pending[0]
		if !d.limiter.Allow(subscriberID, a.Kind, time.Now()) {
			q.mu.Unlock()
			return
		}
		q.pending = append(q.pending[:0], q.pending[1:]...)
		q.mu.Unlock()

		d.deliver(subscriberID, a)
	}
}

// deliver pushes one alert through the sink. A transport failure is logged
// and isolated: it never affects other subscribers or future alerts.
func (d *Dispatcher) deliver(subscriberID string, a Alert) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.DeliveryTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, subscriberID, a); err != nil {
		metrics.AlertsDelivered.WithLabelValues("error").Inc()
		d.logger.Error().Err(err).
			Str("subscriber", subscriberID).
			Str("alert", a.ID).
			Str("kind", string(a.Kind)).
			Msg("alert delivery failed")
		return
	}

	metrics.AlertsDelivered.WithLabelValues("success").Inc()
	d.logger.Debug().
		Str("subscriber", subscriberID).
		Str("alert", a.ID).
		Str("kind", string(a.Kind)).
		Msg("alert delivered")
}
