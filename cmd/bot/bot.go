package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/michaelpento.lv/omniarb/aggregator"
	"github.com/michaelpento.lv/omniarb/allocator"
	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/execution"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/michaelpento.lv/omniarb/ranker"
	"github.com/michaelpento.lv/omniarb/risk"
	"github.com/michaelpento.lv/omniarb/strategies/arbitrage"
	"github.com/michaelpento.lv/omniarb/strategies/multihop"
	"github.com/michaelpento.lv/omniarb/types"
	"github.com/michaelpento.lv/omniarb/utils"
	"github.com/michaelpento.lv/omniarb/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a bot is wired with.
type Deps struct {
	Registry *dex.Registry
	Book     *pricing.TokenBook
	// Gas prices route and pairwise gas in token units; nil leaves gas unpriced.
	Gas      multihop.GasCoster
	Assessor risk.Assessor
	Executor execution.Executor
	Metrics  *metrics.ScanMetrics
}

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	TimedOut      bool
	Opportunities []*types.Opportunity
	Routes        []*types.Route
	Signals       int
	Skipped       int
	Ranked        []*types.OpportunitySignal
	Allocations   []types.Allocation
	Allocated     decimal.Decimal
	BreakerOpen   bool
	Results       []execution.Result
}

// Bot runs the scan pipeline: quotes feed the pairwise detector and the
// multi-hop router, both feed ranking and allocation, and allocations go to
// the executor.
type Bot struct {
	cfg    *config.Config
	logger *zap.Logger

	detector  *arbitrage.Detector
	router    *multihop.Router
	builder   *ranker.SignalBuilder
	ranker    *ranker.Ranker
	allocator *allocator.Allocator
	breaker   *risk.CircuitBreaker
	executor  execution.Executor
	tracker   *execution.Tracker
	metrics   *metrics.ScanMetrics

	pairs   []arbitrage.Pair
	routes  []routeRequest
	minPct  decimal.Decimal
	capital decimal.Decimal

	wg sync.WaitGroup
}

// New creates a bot. Configuration problems are returned wrapped in
// config.ErrConfiguration before any cycle runs.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	logger = utils.OrNop(logger)

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Registry.Len() == 0 {
		return nil, fmt.Errorf("%w: no venues registered", config.ErrConfiguration)
	}
	if deps.Book == nil {
		return nil, fmt.Errorf("%w: no token book", config.ErrConfiguration)
	}

	pairs, routes, err := parseRequests(cfg)
	if err != nil {
		return nil, err
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewScanMetrics(nil)
	}
	assessor := deps.Assessor
	if assessor == nil {
		assessor = risk.NewCompositeAssessor(cfg.Risk)
	}
	executor := deps.Executor
	if executor == nil {
		executor = execution.NewLogExecutor(logger)
	}

	capital := decimal.NewFromFloat(cfg.Allocation.TotalCapitalUSD)
	breaker := risk.NewCircuitBreaker(cfg.CircuitBreaker, logger.Named("breaker"))
	agg := aggregator.New(deps.Registry, cfg.Scan.VenueTimeout.Duration, m, logger.Named("aggregator"))
	router, err := multihop.NewRouter(RouterConfig(cfg.Router), deps.Registry, deps.Book, agg, deps.Book, deps.Gas, logger.Named("router"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	return &Bot{
		cfg:       cfg,
		logger:    logger,
		detector:  arbitrage.NewDetector(agg, cfg.Router.Parallelism, logger.Named("detector")),
		router:    router,
		builder:   ranker.NewSignalBuilder(deps.Book, assessor, cfg.Risk.PairwiseConfidence, deps.Gas),
		ranker:    ranker.New(ranker.ConfigFrom(cfg.Ranking), logger.Named("ranker")),
		allocator: allocator.New(allocator.ConfigFrom(cfg.Allocation), logger.Named("allocator")),
		breaker:   breaker,
		executor:  executor,
		tracker:   execution.NewTracker(capital, breaker),
		metrics:   m,
		pairs:     pairs,
		routes:    routes,
		minPct:    decimal.NewFromFloat(cfg.Scan.MinProfitPct),
		capital:   capital,
	}, nil
}

// RunCycle runs one scan cycle under the configured deadline. Work that does
// not finish in time is dropped; a cycle that finds nothing is not an error.
func (b *Bot) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Allocated: decimal.Zero,
	}
	logger := b.logger.With(zap.String("cycle_id", report.ID))

	cycleCtx := ctx
	if deadline := b.cfg.Scan.CycleDeadline.Duration; deadline > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	report.Opportunities, report.Routes = b.scan(cycleCtx)

	if errors.Is(cycleCtx.Err(), context.DeadlineExceeded) {
		report.TimedOut = true
		report.Opportunities, report.Routes = nil, nil
		b.metrics.CycleTimeouts.Inc()
		logger.Warn("Scan cycle hit its deadline, results dropped")
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	b.metrics.Opportunities.WithLabelValues(string(types.StrategyCrossVenue)).Add(float64(len(report.Opportunities)))
	b.metrics.Opportunities.WithLabelValues(string(types.StrategyMultiHop)).Add(float64(len(report.Routes)))

	signals, skipped := b.builder.Build(ctx, report.Opportunities, report.Routes)
	for _, err := range skipped {
		logger.Debug("Candidate skipped", zap.Error(err))
	}
	report.Signals = len(signals)
	report.Skipped = len(skipped)

	maxPosition := b.allocator.MaxPosition(b.capital)
	report.Ranked = b.ranker.Rank(signals, maxPosition)
	b.metrics.SignalsRanked.Add(float64(len(report.Ranked)))

	report.Allocations = b.allocator.Allocate(report.Ranked, b.capital)
	report.Allocated = allocator.Total(report.Allocations)
	b.metrics.Allocations.Add(float64(len(report.Allocations)))
	b.metrics.CapitalAllocated.Set(report.Allocated.InexactFloat64())

	report.BreakerOpen = b.breaker.Open()
	if report.BreakerOpen {
		b.metrics.BreakerOpen.Set(1)
		logger.Warn("Circuit breaker open, skipping execution",
			zap.Strings("reasons", b.breaker.Reasons()),
			zap.Int("allocations", len(report.Allocations)))
	} else {
		b.metrics.BreakerOpen.Set(0)
		if len(report.Allocations) > 0 {
			results, err := b.executor.Execute(ctx, report.ID, report.Allocations)
			if err != nil {
				logger.Error("Execution hand-off failed", zap.Error(err))
			}
			report.Results = results
			b.tracker.Record(results)
			for _, r := range results {
				b.metrics.Executions.WithLabelValues(string(r.Status)).Inc()
			}
		}
	}

	report.Duration = time.Since(report.StartedAt)
	b.metrics.Cycles.Inc()
	b.metrics.CycleDuration.Observe(report.Duration.Seconds())

	logger.Info("Scan cycle complete",
		zap.Int("opportunities", len(report.Opportunities)),
		zap.Int("routes", len(report.Routes)),
		zap.Int("signals", report.Signals),
		zap.Int("ranked", len(report.Ranked)),
		zap.Int("allocations", len(report.Allocations)),
		zap.String("allocated_usd", report.Allocated.StringFixed(2)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// scan runs the pairwise scan and every route search concurrently.
func (b *Bot) scan(ctx context.Context) ([]*types.Opportunity, []*types.Route) {
	var (
		mu     sync.Mutex
		opps   []*types.Opportunity
		routes []*types.Route
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found := b.detector.ScanTokenPairs(gctx, b.pairs, b.minPct)
		mu.Lock()
		opps = found
		mu.Unlock()
		return nil
	})
	for _, req := range b.routes {
		req := req
		g.Go(func() error {
			found := b.router.FindProfitableRoutes(gctx, req.start, req.end, req.amount, req.maxHops)
			mu.Lock()
			routes = append(routes, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	multihop.SortRoutes(routes)
	return opps, routes
}

// Start runs a cycle immediately and then on every scan interval until ctx
// is done or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	interval := b.cfg.Scan.Interval.Duration
	if interval <= 0 {
		return fmt.Errorf("%w: scan interval must be positive", config.ErrConfiguration)
	}

	b.logger.Info("Starting scanner",
		zap.Int("pairs", len(b.pairs)),
		zap.Int("route_requests", len(b.routes)),
		zap.Duration("interval", interval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := b.RunCycle(ctx); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

// Stop waits for the running cycle to finish. Cancel the context passed to
// Start first.
func (b *Bot) Stop() {
	b.logger.Info("Stopping scanner...")
	b.wg.Wait()

	s := b.tracker.Summary()
	b.logger.Info("Performance summary",
		zap.Int("submitted", s.Submitted),
		zap.Int("failed", s.Failed),
		zap.Int("settled", s.TradesSettled),
		zap.Float64("success_rate", s.SuccessRate),
		zap.String("total_profit_usd", s.TotalProfitUSD.StringFixed(2)),
		zap.String("roi_percent", s.ROIPercent.String()))
}

// Summary returns rolling execution performance.
func (b *Bot) Summary() execution.Summary {
	return b.tracker.Summary()
}

// Breaker exposes the circuit breaker for manual resets.
func (b *Bot) Breaker() *risk.CircuitBreaker {
	return b.breaker
}
