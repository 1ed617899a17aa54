package pricing

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is one entry of the token universe.
type Token struct {
	Address common.Address
	Symbol  string
	// Decimals is the number of decimals of the smallest unit.
	Decimals int32
	// PriceUSD is the reference price of one whole token.
	PriceUSD decimal.Decimal
	// LiquidityRank orders intermediate candidates; lower is deeper.
	LiquidityRank int
}

// Valuer converts token amounts into value terms and back.
type Valuer interface {
	Value(token common.Address, amount *big.Int) (decimal.Decimal, error)
	Units(token common.Address, value decimal.Decimal) (*big.Int, error)
}

// TokenBook is a read-only token registry with reference prices.
type TokenBook struct {
	tokens map[common.Address]Token
	ranked []Token
}

// NewTokenBook indexes tokens. Duplicate addresses are rejected.
func NewTokenBook(tokens []Token) (*TokenBook, error) {
	b := &TokenBook{tokens: make(map[common.Address]Token, len(tokens))}
	for _, tok := range tokens {
		if _, dup := b.tokens[tok.Address]; dup {
			return nil, fmt.Errorf("duplicate token %s", tok.Address.Hex())
		}
		if tok.Decimals < 0 {
			return nil, fmt.Errorf("token %s: negative decimals", tok.Symbol)
		}
		b.tokens[tok.Address] = tok
		b.ranked = append(b.ranked, tok)
	}
	sort.SliceStable(b.ranked, func(i, j int) bool {
		if b.ranked[i].LiquidityRank != b.ranked[j].LiquidityRank {
			return b.ranked[i].LiquidityRank < b.ranked[j].LiquidityRank
		}
		return b.ranked[i].Address.Hex() < b.ranked[j].Address.Hex()
	})
	return b, nil
}

// Token looks up a token by address.
func (b *TokenBook) Token(addr common.Address) (Token, bool) {
	tok, ok := b.tokens[addr]
	return tok, ok
}

// Symbol returns the token symbol or the hex address when unknown.
func (b *TokenBook) Symbol(addr common.Address) string {
	if tok, ok := b.tokens[addr]; ok && tok.Symbol != "" {
		return tok.Symbol
	}
	return addr.Hex()
}

// ByLiquidity returns token addresses ordered by liquidity rank, skipping exclude.
func (b *TokenBook) ByLiquidity(exclude ...common.Address) []common.Address {
	skip := make(map[common.Address]struct{}, len(exclude))
	for _, addr := range exclude {
		skip[addr] = struct{}{}
	}
	out := make([]common.Address, 0, len(b.ranked))
	for _, tok := range b.ranked {
		if _, ok := skip[tok.Address]; ok {
			continue
		}
		out = append(out, tok.Address)
	}
	return out
}

// Value prices amount smallest units of token.
func (b *TokenBook) Value(token common.Address, amount *big.Int) (decimal.Decimal, error) {
	tok, ok := b.tokens[token]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown token %s", token.Hex())
	}
	if amount == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(amount, -tok.Decimals).Mul(tok.PriceUSD), nil
}

// Units converts a value back into smallest units of token, rounding down.
func (b *TokenBook) Units(token common.Address, value decimal.Decimal) (*big.Int, error) {
	tok, ok := b.tokens[token]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", token.Hex())
	}
	if !tok.PriceUSD.IsPositive() {
		return nil, fmt.Errorf("token %s has no reference price", tok.Symbol)
	}
	whole := value.Div(tok.PriceUSD)
	return whole.Shift(tok.Decimals).Truncate(0).BigInt(), nil
}
