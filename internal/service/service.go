package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
	"github.com/TreasuredLabs/TreasuredLabs/internal/feed"
	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
	"github.com/TreasuredLabs/TreasuredLabs/internal/registry"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scheduler"
)

// Pruner removes aged alert log rows. Optional.
type Pruner interface {
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Locker exposes advisory lock helpers so only one instance runs a re-scan
// cycle at a time. Optional.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options tune the runtime loop.
type Options struct {
	HistoryRetain time.Duration
	LockKey       int64
}

// Service owns the runtime: it pumps feed events into the pattern engine and
// drives the periodic contract re-scan cycle. Alert creation and delivery
// happen inside the manager and dispatcher it was wired with.
type Service struct {
	opts       Options
	connectors []*feed.Connector
	engine     *pattern.Engine
	analyzer   *scanner.Analyzer
	manager    *alert.Manager
	registry   *registry.Registry
	scheduler  *scheduler.Scheduler
	pruner     Pruner
	locker     Locker
	logger     zerolog.Logger
}

// New assembles the runtime service.
func New(
	opts Options,
	connectors []*feed.Connector,
	engine *pattern.Engine,
	analyzer *scanner.Analyzer,
	manager *alert.Manager,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	pruner Pruner,
	locker Locker,
	logger zerolog.Logger,
) *Service {
	return &Service{
		opts:       opts,
		connectors: connectors,
		engine:     engine,
		analyzer:   analyzer,
		manager:    manager,
		registry:   reg,
		scheduler:  sched,
		pruner:     pruner,
		locker:     locker,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until ctx is cancelled. Each connector gets its own goroutine
// pair: one maintaining the connection, one draining events into the engine.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, c := range s.connectors {
		c := c
		g.Go(func() error {
			return c.Run(ctx)
		})
		g.Go(func() error {
			s.consume(ctx, c)
			return nil
		})
	}

	if s.scheduler != nil {
		g.Go(func() error {
			return s.scheduler.Run(ctx, s.rescan)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consume drains one connector's event channel. The channel closes only when
// the connector's Run returns, so this exits on shutdown without leaking.
func (s *Service) consume(ctx context.Context, c *feed.Connector) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			s.engine.Handle(ev)
		}
	}
}

// rescan is one scheduler cycle: refresh the subscription set from the
// store, expire stale subscriptions, re-score every contract anyone still
// watches, and prune the durable alert log.
func (s *Service) rescan(ctx context.Context, bucket time.Time) error {
	unlock, acquired, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Info().Time("bucket", bucket).Msg("another instance holds the re-scan lock; skipping cycle")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	// Subscribe/unsubscribe run as separate processes writing to the store;
	// without this refresh their changes would wait for a restart.
	if _, err := s.registry.Reload(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("subscription reload failed; continuing with cached set")
	}

	expired := s.registry.ExpireBefore(ctx, bucket)
	if expired > 0 {
		s.logger.Info().Int("count", expired).Msg("expired subscriptions")
	}

	contracts := s.registry.Contracts()
	s.logger.Debug().Int("contracts", len(contracts)).Time("bucket", bucket).Msg("re-scan cycle")

	for _, contractID := range contracts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		analysis, err := s.analyzer.Analyze(ctx, contractID)
		if err != nil {
			s.logger.Warn().Err(err).Str("contract", contractID).Msg("risk scan failed")
			continue
		}
		s.manager.ProcessRisk(ctx, analysis)
	}

	if s.pruner != nil && s.opts.HistoryRetain > 0 {
		cutoff := bucket.Add(-s.opts.HistoryRetain)
		if err := s.pruner.DeleteAlertsBefore(ctx, cutoff); err != nil {
			s.logger.Warn().Err(err).Msg("alert log prune failed")
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil || s.opts.LockKey == 0 {
		return nil, true, nil
	}
	return s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
}
