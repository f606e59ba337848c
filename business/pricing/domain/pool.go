// Package domain contains the core domain types for the pricing context.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DexKind identifies the protocol family of a liquidity pool. The set
// is closed: adding a venue means adding a constant and updating every
// switch over DexKind.
type DexKind uint8

const (
	DexUnknown DexKind = iota
	DexUniswapV2
	DexSushiSwap
	DexUniswapV3
	DexTraderJoeLB
)

// String returns the canonical config name for the kind.
func (k DexKind) String() string {
	switch k {
	case DexUniswapV2:
		return "uniswap_v2"
	case DexSushiSwap:
		return "sushiswap"
	case DexUniswapV3:
		return "uniswap_v3"
	case DexTraderJoeLB:
		return "traderjoe_lb"
	default:
		return "unknown"
	}
}

// UsesSqrtPrice reports whether the pool exposes price as sqrtPriceX96.
func (k DexKind) UsesSqrtPrice() bool {
	return k == DexUniswapV3
}

// ParseDexKind maps a config string to a DexKind.
func ParseDexKind(s string) (DexKind, error) {
	switch strings.ToLower(s) {
	case "uniswap_v2", "uniswapv2":
		return DexUniswapV2, nil
	case "sushiswap":
		return DexSushiSwap, nil
	case "uniswap_v3", "uniswapv3":
		return DexUniswapV3, nil
	case "traderjoe_lb", "traderjoelb", "joe_lb":
		return DexTraderJoeLB, nil
	default:
		return DexUnknown, fmt.Errorf("unknown dex kind: %q", s)
	}
}

// Token identifies one side of a pool.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// PoolDescriptor describes a monitored liquidity pool. Token0 and
// Token1 follow the pool's own ordering; prices are quoted as token1
// per token0.
type PoolDescriptor struct {
	Name    string
	Kind    DexKind
	Address common.Address
	Token0  Token
	Token1  Token
	FeeTier int // Uniswap V3 fee tier in hundredths of a bip
	BinStep int // Trader Joe LB bin step in bps
}

// Pair returns the order-independent pair key for this pool.
func (p *PoolDescriptor) Pair() PairKey {
	return NewPairKey(p.Token0.Address, p.Token1.Address)
}

// Label returns a human-readable pool identifier.
func (p *PoolDescriptor) Label() string {
	return fmt.Sprintf("%s/%s@%s", p.Token0.Symbol, p.Token1.Symbol, p.Kind)
}

// PairKey identifies a token pair independent of pool ordering: the
// numerically lower address always comes first.
type PairKey string

// NewPairKey builds a PairKey from two token addresses.
func NewPairKey(a, b common.Address) PairKey {
	if strings.Compare(strings.ToLower(a.Hex()), strings.ToLower(b.Hex())) > 0 {
		a, b = b, a
	}
	return PairKey(strings.ToLower(a.Hex()) + ":" + strings.ToLower(b.Hex()))
}

// PoolState is a raw on-chain observation of one pool.
type PoolState struct {
	// Reserve0 and Reserve1 are set for reserve-based pools
	// (Uniswap V2, SushiSwap, Trader Joe LB).
	Reserve0 *big.Int
	Reserve1 *big.Int

	// SqrtPriceX96 is set for Uniswap V3 pools.
	SqrtPriceX96 *big.Int

	BlockNumber uint64
	ObservedAt  time.Time
}
