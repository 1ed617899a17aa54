package sushiswap

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/dex/uniswap"
)

// Factory addresses
var (
	MainnetFactory  = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	MainnetInitCode = common.FromHex("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// MainnetParams returns the Sushiswap mainnet deployment. Sushiswap is a
// Uniswap V2 fork, so only the deployment constants differ.
func MainnetParams() uniswap.Params {
	return uniswap.Params{
		Name:     "sushiswap",
		Factory:  MainnetFactory,
		InitCode: MainnetInitCode,
		FeeBps:   30,
	}
}

// NewSushiswapV2 creates a Sushiswap venue
func NewSushiswapV2(caller bind.ContractCaller, opts ...uniswap.Option) (*uniswap.V2, error) {
	return uniswap.NewV2(caller, MainnetParams(), opts...)
}
