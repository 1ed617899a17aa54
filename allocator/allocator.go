package allocator

import (
	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the allocation limits. Fractions are of total capital.
type Config struct {
	AllocatableFraction decimal.Decimal
	PositionFraction    decimal.Decimal
	MinPosition         decimal.Decimal
}

// ConfigFrom converts the loaded allocation section.
func ConfigFrom(cfg config.AllocationConfig) Config {
	return Config{
		AllocatableFraction: decimal.NewFromFloat(cfg.AllocatableFraction),
		PositionFraction:    decimal.NewFromFloat(cfg.PositionFraction),
		MinPosition:         decimal.NewFromFloat(cfg.MinPositionUSD),
	}
}

// Allocator assigns capital to ranked signals in a single greedy pass. It
// does not search for the optimal packing; a higher-ranked signal always
// gets its share first.
type Allocator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an allocator
func New(cfg Config, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{cfg: cfg, logger: logger}
}

// MaxPosition is the largest single allocation out of totalCapital.
func (a *Allocator) MaxPosition(totalCapital decimal.Decimal) decimal.Decimal {
	return totalCapital.Mul(a.cfg.PositionFraction)
}

// Allocate walks ranked in order, giving each signal the smallest of the
// position cap, its required capital and what is left. Allocations below the
// minimum position are skipped, and the pass stops once the remainder falls
// below it. totalCapital is a snapshot; nothing is reserved.
func (a *Allocator) Allocate(ranked []*types.OpportunitySignal, totalCapital decimal.Decimal) []types.Allocation {
	if !totalCapital.IsPositive() {
		return nil
	}

	remaining := totalCapital.Mul(a.cfg.AllocatableFraction)
	maxPosition := a.MaxPosition(totalCapital)

	var allocations []types.Allocation
	for _, s := range ranked {
		if remaining.LessThan(a.cfg.MinPosition) {
			break
		}

		amount := decimal.Min(maxPosition, s.CapitalRequired, remaining)
		if amount.LessThan(a.cfg.MinPosition) || !amount.IsPositive() {
			continue
		}

		allocations = append(allocations, types.Allocation{Signal: s, Amount: amount})
		remaining = remaining.Sub(amount)
	}

	a.logger.Debug("Allocated capital",
		zap.Int("ranked", len(ranked)),
		zap.Int("allocations", len(allocations)),
		zap.String("remaining_usd", remaining.StringFixed(2)))
	return allocations
}

// Total sums the allocated amounts.
func Total(allocations []types.Allocation) decimal.Decimal {
	sum := decimal.Zero
	for _, alloc := range allocations {
		sum = sum.Add(alloc.Amount)
	}
	return sum
}
