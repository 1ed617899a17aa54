package risk

import (
	"sort"
	"sync"
	"time"

	"github.com/michaelpento.lv/omniarb/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Breaker reasons
const (
	ReasonTradeLoss   = "max_loss_per_trade"
	ReasonDailyLoss   = "max_daily_loss"
	ReasonSuccessRate = "min_success_rate"
)

// CircuitBreaker halts execution hand-off after losses or a run of failures.
// It stays open until reset.
type CircuitBreaker struct {
	mu sync.Mutex

	enabled         bool
	maxLossPerTrade decimal.Decimal
	maxDailyLoss    decimal.Decimal
	minSuccessRate  float64
	minTrades       int

	day       time.Time
	dailyLoss decimal.Decimal
	trades    int
	successes int
	active    map[string]time.Time

	now    func() time.Time
	logger *zap.Logger
}

// NewCircuitBreaker creates a breaker. A disabled breaker never opens.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		enabled:         cfg.Enabled,
		maxLossPerTrade: decimal.NewFromFloat(cfg.MaxLossPerTradeUSD),
		maxDailyLoss:    decimal.NewFromFloat(cfg.MaxDailyLossUSD),
		minSuccessRate:  cfg.MinSuccessRate,
		minTrades:       cfg.MinTrades,
		dailyLoss:       decimal.Zero,
		active:          make(map[string]time.Time),
		now:             time.Now,
		logger:          logger,
	}
}

// RecordTrade feeds one execution outcome. profitUSD is negative for a loss.
func (b *CircuitBreaker) RecordTrade(profitUSD decimal.Decimal, success bool) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rollDay(now)

	b.trades++
	if success {
		b.successes++
	}

	if profitUSD.IsNegative() {
		loss := profitUSD.Neg()
		b.dailyLoss = b.dailyLoss.Add(loss)
		if loss.GreaterThan(b.maxLossPerTrade) {
			b.trip(ReasonTradeLoss, now)
		}
		if b.dailyLoss.GreaterThan(b.maxDailyLoss) {
			b.trip(ReasonDailyLoss, now)
		}
	}

	if b.trades >= b.minTrades && b.trades > 0 {
		rate := float64(b.successes) / float64(b.trades)
		if rate < b.minSuccessRate {
			b.trip(ReasonSuccessRate, now)
		}
	}
}

// Open reports whether any breaker is active.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active) > 0
}

// Reasons lists the active breakers in name order.
func (b *CircuitBreaker) Reasons() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.active))
	for reason := range b.active {
		out = append(out, reason)
	}
	sort.Strings(out)
	return out
}

// Reset clears one breaker. Resetting the success-rate breaker also clears
// the trade counters it was computed from.
func (b *CircuitBreaker) Reset(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.active[reason]; !ok {
		return
	}
	delete(b.active, reason)
	if reason == ReasonSuccessRate {
		b.trades, b.successes = 0, 0
	}
	b.logger.Info("Circuit breaker reset", zap.String("reason", reason))
}

// ResetAll clears every breaker and counter.
func (b *CircuitBreaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = make(map[string]time.Time)
	b.trades, b.successes = 0, 0
	b.dailyLoss = decimal.Zero
	b.logger.Info("All circuit breakers reset")
}

func (b *CircuitBreaker) trip(reason string, at time.Time) {
	if _, ok := b.active[reason]; ok {
		return
	}
	b.active[reason] = at
	b.logger.Warn("Circuit breaker tripped",
		zap.String("reason", reason),
		zap.String("daily_loss_usd", b.dailyLoss.StringFixed(2)),
		zap.Int("trades", b.trades),
		zap.Int("successes", b.successes))
}

func (b *CircuitBreaker) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(b.day) {
		b.day = day
		b.dailyLoss = decimal.Zero
	}
}
