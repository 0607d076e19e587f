package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clober-dex/clober-market-maker-sub000/strategy"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

var wethUSDC = tickmath.Converter{QuoteDecimals: 6, BaseDecimals: 18}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bidTrade(block uint64, idx uint, price, baseIn string) TradeRecord {
	p := d(price)
	return TradeRecord{IsTakingBidSide: true, AmountIn: d(baseIn), AmountOut: d(baseIn).Mul(p), Price: p, BlockNumber: block, LogIndex: idx}
}

func askTrade(block uint64, idx uint, price, baseOut string) TradeRecord {
	p := d(price)
	return TradeRecord{IsTakingBidSide: false, AmountIn: d(baseOut).Mul(p), AmountOut: d(baseOut), Price: p, BlockNumber: block, LogIndex: idx}
}

func newSim() *DexSimulator {
	return NewDexSimulator(wethUSDC, strategy.SpreadPair{AskSpread: 25, BidSpread: 35})
}

func TestFindSpreadEmptyTapeFallsBack(t *testing.T) {
	res, err := newSim().FindSpread(nil, 1, 100, d("3000"))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, strategy.SpreadPair{AskSpread: 25, BidSpread: 35}, res.Spread)
	assert.True(t, res.Profit.IsZero())
	assert.True(t, res.TargetAskPrice.Equal(d("3000")))
	assert.True(t, res.TargetBidPrice.Equal(d("3000")))
}

func TestFindSpreadSingleBidTrade(t *testing.T) {
	trades := []TradeRecord{bidTrade(10, 0, "2990", "1")}
	res, err := newSim().FindSpread(trades, 1, 100, d("3000"))
	require.NoError(t, err)
	ok := res.TargetBidPrice.Equal(d("2990")) || res.TargetBidPrice.Equal(d("3000"))
	assert.True(t, ok, "target bid %s", res.TargetBidPrice)
	assert.False(t, res.Profit.IsNegative())
	assert.Equal(t, 1, res.Trades)
}

func TestFindSpreadPicksMostProfitableBid(t *testing.T) {
	trades := []TradeRecord{
		bidTrade(10, 0, "2990", "1"),
		bidTrade(11, 0, "2980", "2"),
	}
	res, err := newSim().FindSpread(trades, 1, 100, d("3000"))
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.True(t, res.TargetBidPrice.Equal(d("2990")), "bid %s", res.TargetBidPrice)
	assert.True(t, res.TargetAskPrice.Equal(d("3000")), "ask %s", res.TargetAskPrice)
	// 2 * (3000 - 2990)
	assert.True(t, res.Profit.Equal(d("20")), "profit %s", res.Profit)
	assert.Equal(t, int64(0), res.Spread.AskSpread)
	assert.GreaterOrEqual(t, res.Spread.BidSpread, int64(33))
	assert.LessOrEqual(t, res.Spread.BidSpread, int64(34))
}

func TestFindSpreadBothSides(t *testing.T) {
	trades := []TradeRecord{
		bidTrade(10, 0, "2990", "1"),
		bidTrade(11, 0, "2980", "2"),
		askTrade(12, 0, "3010", "1"),
		askTrade(12, 1, "3020", "1.5"),
	}
	res, err := newSim().FindSpread(trades, 1, 100, d("3000"))
	require.NoError(t, err)
	assert.True(t, res.TargetBidPrice.Equal(d("2990")))
	assert.True(t, res.TargetAskPrice.Equal(d("3010")))
	// 20 + 1.5 * (3010 - 3000)
	assert.True(t, res.Profit.Equal(d("35")), "profit %s", res.Profit)
	assert.Positive(t, res.Spread.AskSpread)
	assert.Positive(t, res.Spread.BidSpread)
}

func TestFindSpreadIgnoresTradesOutsideWindow(t *testing.T) {
	trades := []TradeRecord{
		bidTrade(5, 0, "2990", "1"),
		bidTrade(500, 0, "2980", "2"),
	}
	res, err := newSim().FindSpread(trades, 10, 100, d("3000"))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 0, res.Trades)
}

func TestFindSpreadIgnoresTradesOnWrongSideOfOracle(t *testing.T) {
	// 吃买盘却高于 oracle，不会成为候选价
	trades := []TradeRecord{bidTrade(10, 0, "3050", "1"), bidTrade(10, 1, "3040", "1")}
	res, err := newSim().FindSpread(trades, 1, 100, d("3000"))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestFindSpreadRejectsInvalidOracle(t *testing.T) {
	_, err := newSim().FindSpread(nil, 1, 2, decimal.Zero)
	assert.ErrorIs(t, err, tickmath.ErrInvalidPrice)
}
