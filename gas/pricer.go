package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/shopspring/decimal"
)

// PriceSource reports the current gas price in wei.
type PriceSource interface {
	GasPrice() (*big.Int, error)
}

// FixedPrice is a constant gas price, used when no chain is read.
type FixedPrice struct {
	wei *big.Int
}

// NewFixedPrice creates a price source quoting gwei.
func NewFixedPrice(gwei float64) *FixedPrice {
	return &FixedPrice{wei: decimal.NewFromFloat(gwei).Shift(9).BigInt()}
}

// GasPrice returns the fixed price in wei.
func (f *FixedPrice) GasPrice() (*big.Int, error) {
	return new(big.Int).Set(f.wei), nil
}

// Pricer converts gas units into an amount of any priced token, going
// through the native token's reference price.
type Pricer struct {
	prices PriceSource
	valuer pricing.Valuer
	native common.Address
}

// NewPricer creates a pricer. native is the token gas is paid in.
func NewPricer(prices PriceSource, valuer pricing.Valuer, native common.Address) *Pricer {
	return &Pricer{prices: prices, valuer: valuer, native: native}
}

// GasCost returns the cost of gasUnits in smallest units of token.
func (p *Pricer) GasCost(ctx context.Context, token common.Address, gasUnits uint64) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	price, err := p.prices.GasPrice()
	if err != nil {
		return nil, err
	}
	wei := price.Mul(price, new(big.Int).SetUint64(gasUnits))
	if token == p.native {
		return wei, nil
	}

	value, err := p.valuer.Value(p.native, wei)
	if err != nil {
		return nil, fmt.Errorf("value gas: %w", err)
	}
	units, err := p.valuer.Units(token, value)
	if err != nil {
		return nil, fmt.Errorf("gas in %s: %w", token.Hex(), err)
	}
	return units, nil
}
