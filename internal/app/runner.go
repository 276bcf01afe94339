package app

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/config"
	"whalewatch/internal/storage"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// wsReconnectInterval is how often the reconnector checks stream health.
const wsReconnectInterval = 30 * time.Second

// Runner wires the pipeline together and drives every periodic job until
// the context is cancelled. Jobs run independently; none shares scheduler
// state with another.
type Runner struct {
	logger  *zap.Logger
	cfg     *config.Config
	clients *clts.Clients
	stores  *storage.Stores

	ingestor *Ingestor
	detector *Detector
	profiler *Profiler
	scorer   *Scorer
	engine   *AlertEngine
	cleaner  *Cleaner
	reporter *Reporter

	startTime time.Time
}

func NewRunner(logger *zap.Logger, cfg *config.Config, clients *clts.Clients, stores *storage.Stores) *Runner {
	titles := newTitleResolver(logger, stores.Markets, clients.Gamma)

	return &Runner{
		logger:   logger,
		cfg:      cfg,
		clients:  clients,
		stores:   stores,
		ingestor: NewIngestor(logger, cfg, clients, stores),
		detector: NewDetector(logger, cfg.Detector, stores),
		profiler: NewProfiler(logger, cfg.Profiler, stores),
		scorer:   NewScorer(logger, cfg.Scorer, stores),
		engine:   NewAlertEngine(logger, cfg.Alerts, stores, clients.Telegram, clients.Discord, titles),
		cleaner:  NewCleaner(logger, cfg.Cleanup, stores, titles),
		reporter: NewReporter(logger, cfg.Report, stores, clients.Discord),
	}
}

// Run blocks until ctx is cancelled and every job has stopped.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	r.logger.Info("starting whale pipeline",
		zap.String("buildCommit", shortID(BuildCommit)),
		zap.Bool("isProd", r.cfg.IsProd),
		zap.Bool("useWebSocket", r.cfg.Polymarket.UseWebSocket),
		zap.Int("topMarkets", r.cfg.Polymarket.TopMarkets),
		zap.Int("watchedMarkets", len(r.cfg.Polymarket.WatchedMarkets)),
		zap.Duration("detectorInterval", r.cfg.Detector.Interval),
		zap.Duration("scorerInterval", r.cfg.Scorer.Interval),
		zap.Duration("dispatchInterval", r.cfg.Alerts.DispatchInterval),
		zap.Duration("freeAlertDelay", r.cfg.Alerts.FreeDelay),
		zap.Duration("accessTokenTTL", r.cfg.AccessTokenTTL),
	)

	if r.cfg.HealthPort > 0 {
		r.startHealthServer(ctx, r.cfg.HealthPort)
	}

	// Seed market metadata before the first poll so trades and books have
	// tokens to target.
	if err := r.ingestor.RefreshMarkets(ctx); err != nil {
		r.logger.Warn("initial market refresh failed", zap.Error(err))
	}

	if r.clients.Stream != nil {
		if err := r.clients.Stream.Connect(ctx, r.ingestor.TokenIDs()); err != nil {
			r.logger.Warn("stream connect failed, polling only until reconnect", zap.Error(err))
		}
		go r.ingestor.ConsumeStream(ctx)
	}

	jobs := []struct {
		name      string
		interval  time.Duration
		immediate bool
		fn        func(context.Context) error
	}{
		{"market-refresh", r.cfg.Ingest.OrderbookInterval * 5, false, r.ingestor.RefreshMarkets},
		{"trade-poll", r.cfg.Ingest.PollInterval, true, r.ingestor.PollTrades},
		{"orderbook-snapshot", r.cfg.Ingest.OrderbookInterval, true, r.ingestor.SnapshotOrderbooks},
		{"detector", r.cfg.Detector.Interval, false, r.detector.Run},
		{"profiler", r.cfg.Profiler.Interval, false, r.profiler.Run},
		{"scorer", r.cfg.Scorer.Interval, false, r.scorer.Run},
		{"dispatch", r.cfg.Alerts.DispatchInterval, false, r.engine.Dispatch},
		{"conviction", r.cfg.Alerts.ConvictionInterval, false, r.engine.SynthesizeConviction},
		{"cleanup", r.cfg.Cleanup.Interval, false, r.cleaner.Run},
		{"report", r.cfg.Report.Interval, false, r.reporter.Run},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(name string, interval time.Duration, immediate bool, fn func(context.Context) error) {
			defer wg.Done()
			runPeriodic(ctx, r.logger, name, interval, immediate, fn)
		}(job.name, job.interval, job.immediate, job.fn)
	}

	if r.clients.Stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runWSReconnector(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	r.logger.Info("whale pipeline stopped",
		zap.Duration("uptime", time.Since(r.startTime)))
	return nil
}

// runWSReconnector redials the market stream when the read loop has torn the
// connection down.
func (r *Runner) runWSReconnector(ctx context.Context) {
	ticker := time.NewTicker(wsReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.clients.Stream.Connected() {
				continue
			}
			r.logger.Info("stream disconnected, reconnecting")
			if err := r.clients.Stream.Connect(ctx, r.ingestor.TokenIDs()); err != nil {
				r.logger.Warn("stream reconnect failed", zap.Error(err))
			}
		}
	}
}
