package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var (
	// ErrNoGasPrice is returned before the first successful update.
	ErrNoGasPrice    = errors.New("gas price not yet known")
	// ErrStaleGasPrice is returned once updates have failed for staleAfter intervals.
	ErrStaleGasPrice = errors.New("gas price is stale")
)

// staleAfter is the number of missed update intervals after which a price
// is no longer served.
const staleAfter = 3

// ChainReader is the part of ethclient.Client the estimator reads.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator provides gas price estimation and tracking
type Estimator struct {
	client   ChainReader
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	baseFee     *big.Int
	priorityFee *big.Int
	updatedAt   time.Time
}

// NewEstimator creates a new gas estimator. Prices are refreshed every
// interval once Run is started.
func NewEstimator(client ChainReader, interval time.Duration, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 12 * time.Second
	}
	return &Estimator{
		client:   client,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run refreshes gas prices until ctx is done.
func (e *Estimator) Run(ctx context.Context) {
	if err := e.Update(ctx); err != nil {
		e.logger.Warn("Failed to update gas prices", zap.Error(err))
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Update(ctx); err != nil {
				e.logger.Warn("Failed to update gas prices", zap.Error(err))
			}
		}
	}
}

// Update fetches latest gas prices
func (e *Estimator) Update(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		return fmt.Errorf("block %v has no base fee", header.Number)
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = new(big.Int).Set(header.BaseFee)
	e.priorityFee = new(big.Int).Set(priorityFee)
	e.updatedAt = e.now()
	e.mu.Unlock()

	e.logger.Debug("Gas prices updated",
		zap.String("base_fee", header.BaseFee.String()),
		zap.String("priority_fee", priorityFee.String()))
	return nil
}

// GasPrice returns base fee plus priority fee in wei. A price not refreshed
// within staleAfter intervals is refused.
func (e *Estimator) GasPrice() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.baseFee == nil || e.priorityFee == nil {
		return nil, ErrNoGasPrice
	}
	if age := e.now().Sub(e.updatedAt); age > staleAfter*e.interval {
		return nil, fmt.Errorf("%w: last update %s ago", ErrStaleGasPrice, age.Round(time.Second))
	}
	return new(big.Int).Add(e.baseFee, e.priorityFee), nil
}
