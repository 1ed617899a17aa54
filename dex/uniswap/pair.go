package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// PairReader reads the live reserves of one V2 pair.
type PairReader interface {
	GetReserves(ctx context.Context) (reserve0 *big.Int, reserve1 *big.Int, err error)
}

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

var pairABI = mustParseABI(pairABIJson)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse pair ABI: %v", err))
	}
	return parsed
}

// Pair is a read-only binding to a V2 pair contract.
type Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewPair binds the pair at address using caller for eth_call.
func NewPair(address common.Address, caller bind.ContractCaller) *Pair {
	return &Pair{
		contract: bind.NewBoundContract(address, pairABI, caller, nil, nil),
		address:  address,
	}
}

// Address returns the pair contract address
func (p *Pair) Address() common.Address {
	return p.address
}

// GetReserves returns the current reserves of the pair
func (p *Pair) GetReserves(ctx context.Context) (*big.Int, *big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves of %s: %w", p.address.Hex(), err)
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("getReserves of %s returned %d values", p.address.Hex(), len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}

	return reserve0, reserve1, nil
}
