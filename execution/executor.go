package execution

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/omniarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Status is what happened to one allocation.
type Status string

const (
	// StatusDryRun means the allocation was only logged.
	StatusDryRun Status = "dry_run"
	// StatusPublished means the allocation was handed to an external executor
	// whose outcome is not known yet.
	StatusPublished Status = "published"
	// StatusSettled means the trade finished and Success and ProfitUSD are final.
	StatusSettled Status = "settled"
	// StatusFailed means the hand-off itself failed.
	StatusFailed Status = "failed"
)

// Result reports one allocation back to the scan loop.
type Result struct {
	Key       uint64
	SourceID  string
	Kind      types.StrategyKind
	Amount    decimal.Decimal
	Status    Status
	Success   bool
	ProfitUSD decimal.Decimal
	Err       error
}

// Executor receives a cycle's allocations in rank order. It is the only
// component that may act on them.
type Executor interface {
	Execute(ctx context.Context, cycleID string, allocations []types.Allocation) ([]Result, error)
}

func resultFor(alloc types.Allocation, status Status) Result {
	s := alloc.Signal
	return Result{
		Key:       s.Key,
		SourceID:  s.SourceID(),
		Kind:      s.Kind,
		Amount:    alloc.Amount,
		Status:    status,
		ProfitUSD: decimal.Zero,
	}
}

func allocationFields(cycleID string, rank int, alloc types.Allocation) []zap.Field {
	s := alloc.Signal
	return []zap.Field{
		zap.String("cycle_id", cycleID),
		zap.Int("rank", rank),
		zap.String("kind", string(s.Kind)),
		zap.String("source", s.SourceID()),
		zap.String("key", fmt.Sprintf("%016x", s.Key)),
		zap.String("amount_usd", alloc.Amount.StringFixed(2)),
		zap.String("net_profit_usd", s.NetProfit.StringFixed(2)),
		zap.Float64("confidence", s.Confidence),
		zap.Float64("risk_score", s.RiskScore),
	}
}

// LogExecutor logs allocations without acting on them.
type LogExecutor struct {
	logger *zap.Logger
}

// NewLogExecutor creates a dry-run executor
func NewLogExecutor(logger *zap.Logger) *LogExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExecutor{logger: logger}
}

// Execute implements Executor.
func (e *LogExecutor) Execute(ctx context.Context, cycleID string, allocations []types.Allocation) ([]Result, error) {
	results := make([]Result, 0, len(allocations))
	for i, alloc := range allocations {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		e.logger.Info("Allocation (dry run)", allocationFields(cycleID, i, alloc)...)
		results = append(results, resultFor(alloc, StatusDryRun))
	}
	return results, nil
}

// PaperExecutor settles every allocation immediately at its expected profit,
// scaled to the allocated share of the required capital.
type PaperExecutor struct {
	logger *zap.Logger
}

// NewPaperExecutor creates a paper-trading executor
func NewPaperExecutor(logger *zap.Logger) *PaperExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExecutor{logger: logger}
}

// Execute implements Executor.
func (e *PaperExecutor) Execute(ctx context.Context, cycleID string, allocations []types.Allocation) ([]Result, error) {
	results := make([]Result, 0, len(allocations))
	for i, alloc := range allocations {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r := resultFor(alloc, StatusSettled)
		r.Success = true
		r.ProfitUSD = ExpectedProfit(alloc)
		results = append(results, r)

		e.logger.Info("Allocation settled (paper)",
			append(allocationFields(cycleID, i, alloc), zap.String("profit_usd", r.ProfitUSD.StringFixed(2)))...)
	}
	return results, nil
}

// ExpectedProfit scales a signal's net profit to the allocated amount.
func ExpectedProfit(alloc types.Allocation) decimal.Decimal {
	s := alloc.Signal
	if !s.CapitalRequired.IsPositive() {
		return decimal.Zero
	}
	if alloc.Amount.GreaterThanOrEqual(s.CapitalRequired) {
		return s.NetProfit
	}
	return s.NetProfit.Mul(alloc.Amount).DivRound(s.CapitalRequired, 8)
}
