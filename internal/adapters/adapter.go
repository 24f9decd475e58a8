// Package adapters provides protocol-specific position readers for the
// supported DeFi protocols. Each adapter translates raw on-chain state
// into the shared account summary model.
package adapters

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

// ContractCaller is the sliver of the ethclient API the adapters need.
// ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PriceSource supplies USD prices for position valuation.
type PriceSource interface {
	USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Adapter reads one protocol's positions for an address on one chain.
type Adapter interface {
	Protocol() string
	Chain() types.SupportedChain
	FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error)
}

// selector returns the 4-byte function selector for a Solidity signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// callData packs a selector with left-padded 32-byte arguments.
func callData(sel []byte, args ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, sel...)
	for _, arg := range args {
		data = append(data, common.LeftPadBytes(arg, 32)...)
	}
	return data
}

// call executes a read-only contract call and returns the raw output.
func call(ctx context.Context, caller ContractCaller, to common.Address, data []byte) ([]byte, error) {
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, apperrors.Blockchain(fmt.Sprintf("contract call to %s failed", to.Hex()), err)
	}
	return out, nil
}

// word extracts the i-th 32-byte return word as a big.Int.
func word(out []byte, i int) (*big.Int, error) {
	start := i * 32
	if len(out) < start+32 {
		return nil, apperrors.Blockchain(fmt.Sprintf("short return data: want word %d, got %d bytes", i, len(out)), nil)
	}
	return new(big.Int).SetBytes(out[start : start+32]), nil
}

// toDecimal converts a raw token amount to a decimal using the token's
// decimal count.
func toDecimal(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

// usdValue converts amount * price to a float suitable for the summary
// model. Decimal math keeps the multiplication exact before the final
// narrowing.
func usdValue(amount, price decimal.Decimal) float64 {
	v, _ := amount.Mul(price).Float64()
	return v
}

// ratioFloat converts an 18-decimal fixed-point value to a float.
func ratioFloat(raw *big.Int) float64 {
	v, _ := decimal.NewFromBigInt(raw, -18).Float64()
	return v
}
