package adapters

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

var (
	nfpmBalanceOf           = selector("balanceOf(address)")
	nfpmTokenOfOwnerByIndex = selector("tokenOfOwnerByIndex(address,uint256)")
	nfpmPositions           = selector("positions(uint256)")
	factoryGetPool          = selector("getPool(address,address,uint24)")
	poolSlot0               = selector("slot0()")
)

// TokenInfo describes an ERC-20 the adapter can value.
type TokenInfo struct {
	Symbol   string
	Decimals int32
}

// UniswapV3Adapter enumerates LP positions through the nonfungible
// position manager and values them against current pool state. Tokens
// outside the configured token table are skipped with a warning rather
// than failing the whole account.
type UniswapV3Adapter struct {
	caller  ContractCaller
	prices  PriceSource
	chain   types.SupportedChain
	manager common.Address
	factory common.Address
	tokens  map[common.Address]TokenInfo
}

// NewUniswapV3Adapter creates an adapter for the given position manager
// and factory deployments.
func NewUniswapV3Adapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, manager, factory common.Address, tokens map[common.Address]TokenInfo) *UniswapV3Adapter {
	return &UniswapV3Adapter{caller: caller, prices: prices, chain: chain, manager: manager, factory: factory, tokens: tokens}
}

// Protocol returns the protocol identifier.
func (a *UniswapV3Adapter) Protocol() string { return "uniswap_v3" }

// Chain returns the chain this adapter reads from.
func (a *UniswapV3Adapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary walks the address's LP NFTs and builds one position per
// token id, with the range metadata the risk calculator consumes.
func (a *UniswapV3Adapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	out, err := call(ctx, a.caller, a.manager, callData(nfpmBalanceOf, address.Bytes()))
	if err != nil {
		return model.AccountSummary{}, err
	}
	count, err := word(out, 0)
	if err != nil {
		return model.AccountSummary{}, err
	}

	summary := model.AccountSummary{
		Protocol:     a.Protocol(),
		Address:      address.Hex(),
		HealthFactor: math.Inf(1),
	}

	n := count.Int64()
	for i := int64(0); i < n; i++ {
		out, err := call(ctx, a.caller, a.manager, callData(nfpmTokenOfOwnerByIndex, address.Bytes(), big.NewInt(i).Bytes()))
		if err != nil {
			return model.AccountSummary{}, err
		}
		tokenID, err := word(out, 0)
		if err != nil {
			return model.AccountSummary{}, err
		}

		position, err := a.readPosition(ctx, tokenID)
		if err != nil {
			return model.AccountSummary{}, err
		}
		if position == nil {
			continue
		}

		summary.Positions = append(summary.Positions, *position)
		summary.TotalSupplyUSD += position.ValueUSD
	}

	summary.NetWorthUSD = summary.TotalSupplyUSD

	logrus.Debugf("Uniswap summary for %s: %d of %d LP tokens valued", address.Hex(), len(summary.Positions), n)
	return summary, nil
}

// readPosition resolves one LP NFT into a position, or nil when the
// position has no liquidity or an unknown token.
func (a *UniswapV3Adapter) readPosition(ctx context.Context, tokenID *big.Int) (*model.Position, error) {
	out, err := call(ctx, a.caller, a.manager, callData(nfpmPositions, tokenID.Bytes()))
	if err != nil {
		return nil, err
	}

	token0Word, err := word(out, 2)
	if err != nil {
		return nil, err
	}
	token1Word, err := word(out, 3)
	if err != nil {
		return nil, err
	}
	feeWord, err := word(out, 4)
	if err != nil {
		return nil, err
	}
	tickLowerWord, err := word(out, 5)
	if err != nil {
		return nil, err
	}
	tickUpperWord, err := word(out, 6)
	if err != nil {
		return nil, err
	}
	liquidity, err := word(out, 7)
	if err != nil {
		return nil, err
	}
	if liquidity.Sign() == 0 {
		return nil, nil
	}

	token0 := common.BytesToAddress(token0Word.Bytes())
	token1 := common.BytesToAddress(token1Word.Bytes())
	info0, ok0 := a.tokens[token0]
	info1, ok1 := a.tokens[token1]
	if !ok0 || !ok1 {
		logrus.Warnf("Skipping LP token %s: unknown token in pair %s/%s", tokenID, token0.Hex(), token1.Hex())
		return nil, nil
	}

	tickLower := signedTick(tickLowerWord)
	tickUpper := signedTick(tickUpperWord)

	currentTick, sqrtPrice, err := a.poolState(ctx, token0, token1, feeWord)
	if err != nil {
		return nil, err
	}

	amount0, amount1 := liquidityAmounts(liquidity, sqrtPrice, tickLower, tickUpper)

	price0, err := a.prices.USDPrice(ctx, info0.Symbol)
	if err != nil {
		return nil, err
	}
	price1, err := a.prices.USDPrice(ctx, info1.Symbol)
	if err != nil {
		return nil, err
	}

	valueUSD := usdValue(decimal.NewFromFloat(amount0).Shift(-info0.Decimals), price0) +
		usdValue(decimal.NewFromFloat(amount1).Shift(-info1.Decimals), price1)

	p := model.NewPosition(a.Protocol(), model.PositionLP, fmt.Sprintf("%s/%s", info0.Symbol, info1.Symbol), valueUSD)
	p.Metadata["in_range"] = currentTick >= tickLower && currentTick < tickUpper
	p.Metadata["range_width_pct"] = (math.Pow(1.0001, float64(tickUpper-tickLower)) - 1) * 100
	p.Metadata["token_id"] = tokenID.String()
	return &p, nil
}

// poolState resolves the pool for a pair and fee tier and reads its
// current tick and sqrt price.
func (a *UniswapV3Adapter) poolState(ctx context.Context, token0, token1 common.Address, fee *big.Int) (int64, float64, error) {
	out, err := call(ctx, a.caller, a.factory, callData(factoryGetPool, token0.Bytes(), token1.Bytes(), fee.Bytes()))
	if err != nil {
		return 0, 0, err
	}
	poolWord, err := word(out, 0)
	if err != nil {
		return 0, 0, err
	}
	pool := common.BytesToAddress(poolWord.Bytes())

	out, err = call(ctx, a.caller, pool, callData(poolSlot0))
	if err != nil {
		return 0, 0, err
	}
	sqrtPriceX96, err := word(out, 0)
	if err != nil {
		return 0, 0, err
	}
	tickWord, err := word(out, 1)
	if err != nil {
		return 0, 0, err
	}

	sqrtPrice, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96)),
	).Float64()

	return signedTick(tickWord), sqrtPrice, nil
}

// signedTick decodes a two's-complement int24 from a 32-byte return word.
func signedTick(w *big.Int) int64 {
	if w.Bit(255) == 1 {
		return new(big.Int).Sub(w, new(big.Int).Lsh(big.NewInt(1), 256)).Int64()
	}
	return w.Int64()
}

// liquidityAmounts converts Uniswap liquidity into raw token amounts at
// the current price. Float math is fine here: the result feeds a risk
// score, not a settlement.
func liquidityAmounts(liquidity *big.Int, sqrtPrice float64, tickLower, tickUpper int64) (amount0, amount1 float64) {
	l, _ := new(big.Float).SetInt(liquidity).Float64()
	sa := math.Pow(1.0001, float64(tickLower)/2)
	sb := math.Pow(1.0001, float64(tickUpper)/2)

	switch {
	case sqrtPrice <= sa:
		amount0 = l * (sb - sa) / (sa * sb)
	case sqrtPrice >= sb:
		amount1 = l * (sb - sa)
	default:
		amount0 = l * (sb - sqrtPrice) / (sqrtPrice * sb)
		amount1 = l * (sqrtPrice - sa)
	}
	return amount0, amount1
}
