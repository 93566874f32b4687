package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
	"github.com/TreasuredLabs/TreasuredLabs/internal/chain"
	"github.com/TreasuredLabs/TreasuredLabs/internal/config"
	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
	"github.com/TreasuredLabs/TreasuredLabs/internal/feed"
	"github.com/TreasuredLabs/TreasuredLabs/internal/notify"
	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
	"github.com/TreasuredLabs/TreasuredLabs/internal/registry"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scheduler"
	"github.com/TreasuredLabs/TreasuredLabs/internal/service"
	"github.com/TreasuredLabs/TreasuredLabs/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newAnalyzer() *scanner.Analyzer {
	client := chain.NewClient(chain.ClientOptions{
		RPCURL:         a.Config.Chain.RPCURL,
		RequestTimeout: a.Config.Chain.RequestTimeout,
		RequestsPerSec: a.Config.Chain.RequestsPerSec,
	}, a.Logger)

	indexer := chain.NewIndexer(chain.IndexerOptions{
		BaseURL:        a.Config.Indexer.BaseURL,
		APIKey:         a.Config.Indexer.APIKey,
		RequestTimeout: a.Config.Indexer.RequestTimeout,
		UserAgent:      a.Config.Indexer.UserAgent,
	}, a.Logger)

	return scanner.NewAnalyzer(chain.NewProvider(client, indexer), scanner.Options{
		SubAnalysisTimeout: a.Config.Scanner.SubAnalysisTimeout,
		FreshnessTTL:       a.Config.Scanner.FreshnessTTL,
		KnownRugs:          a.Config.Scanner.KnownRugs,
	}, a.Logger)
}

func (a *App) newSink() alert.Sink {
	if a.Config.Telegram.Enabled {
		cfg := a.Config.Telegram
		return notify.NewTelegramSink(cfg.BotToken, cfg.APIBase, cfg.RequestTimeout, a.Logger)
	}
	return notify.NewLogSink(a.Logger)
}

func (a *App) newDetectors() []pattern.Detector {
	p := a.Config.Patterns
	return []pattern.Detector{
		pattern.NewBreakout(p.Breakout),
		pattern.NewAccumulation(p.Accumulation),
		pattern.NewDistribution(p.Distribution),
		pattern.NewWhale(p.Whale),
	}
}

func (a *App) newConnectors() []*feed.Connector {
	specs := []struct {
		name   string
		source event.Source
		cfg    config.FeedConfig
	}{
		{"prices", event.SourcePrice, a.Config.Feeds.Prices},
		{"transactions", event.SourceTransaction, a.Config.Feeds.Transactions},
		{"whales", event.SourceWhaleTransfer, a.Config.Feeds.Whales},
	}

	connectors := make([]*feed.Connector, 0, len(specs))
	for _, fs := range specs {
		if fs.cfg.URL == "" {
			a.Logger.Warn().Str("feed", fs.name).Msg("feed url not configured; stream disabled")
			continue
		}
		connectors = append(connectors, feed.NewConnector(feed.Options{
			Name:              fs.name,
			Source:            fs.source,
			URL:               fs.cfg.URL,
			HeartbeatInterval: fs.cfg.HeartbeatInterval,
			HeartbeatTimeout:  fs.cfg.HeartbeatTimeout,
			ReconnectInitial:  fs.cfg.ReconnectInitial,
			ReconnectMax:      fs.cfg.ReconnectMax,
			Buffer:            fs.cfg.Buffer,
		}, feed.WebsocketDialer{}, a.Logger))
	}
	return connectors
}

// Run executes the long-running detection service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var (
		subStore  registry.Store
		histStore alert.HistoryStore
		pruner    service.Pruner
		locker    service.Locker
	)
	if store != nil {
		subStore = store
		histStore = store
		pruner = store
		locker = store
	}

	reg := registry.New(subStore, a.Logger)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	dispatcher := alert.NewDispatcher(alert.DispatcherOptions{
		QueueSize:       a.Config.Dispatch.QueueSize,
		PendingCapacity: a.Config.Dispatch.PendingCapacity,
		DeliveryTimeout: a.Config.Dispatch.DeliveryTimeout,
		RateLimitWindow: a.Config.Dispatch.RateLimitWindow,
		RateLimitCap:    a.Config.Dispatch.RateLimitCap,
	}, reg, a.newSink(), a.Logger)
	defer dispatcher.Close()

	manager := alert.NewManager(alert.ManagerOptions{
		DedupWindow:        a.Config.Dispatch.DedupWindow,
		HistoryCapacity:    a.Config.Dispatch.HistoryCapacity,
		HistoryMaxAge:      a.Config.Dispatch.HistoryMaxAge,
		RiskAlertThreshold: a.Config.Scanner.RiskAlertThreshold,
	}, dispatcher, histStore, a.Logger)

	engine := pattern.NewEngine(a.newDetectors(), func(contractID string, res pattern.Result) {
		manager.ProcessPattern(ctx, contractID, res)
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Rescan.Interval,
		AlignToBucket: a.Config.Rescan.AlignToBucket,
		StartupDelay:  a.Config.Rescan.StartupDelay,
	}, a.Logger)

	svc := service.New(service.Options{
		HistoryRetain: a.Config.Rescan.HistoryRetain,
		LockKey:       a.Config.Rescan.AdvisoryLockKey,
	}, a.newConnectors(), engine, a.newAnalyzer(), manager, reg, sched, pruner, locker, a.Logger)

	a.Logger.Info().Msg("starting detection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("detection service stopped")
	return nil
}

// ScanOptions configure a one-off contract risk scan.
type ScanOptions struct {
	ContractID string
}

// SubscribeOptions configure the subscribe command.
type SubscribeOptions struct {
	SubscriberID  string
	ContractID    string
	Kinds         []string
	MinConfidence float64
	Priority      string
	TTL           time.Duration
}

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the alert log.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
