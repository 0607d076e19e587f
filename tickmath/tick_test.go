package tickmath

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceToTickRoundTrip(t *testing.T) {
	for _, tick := range []int64{-196000, -1000, -1, 0, 1, 2500, 90000} {
		price := TickToPrice(tick, 6, 6)
		got, err := PriceToTick(price, 6, 6)
		require.NoError(t, err)
		assert.Equal(t, tick, got, "tick %d", tick)
	}
}

func TestPriceToTickDecimals(t *testing.T) {
	// ETH(18)/USDC(6) 3000 -> rawPrice = 3000e-12
	tick, err := PriceToTick(decimal.NewFromInt(3000), 6, 18)
	require.NoError(t, err)
	assert.Less(t, tick, int64(0))

	price := TickToPrice(tick, 6, 18)
	assert.True(t, price.LessThanOrEqual(decimal.NewFromInt(3000)))
	next := TickToPrice(tick+1, 6, 18)
	assert.True(t, next.GreaterThan(decimal.NewFromInt(3000)))
}

func TestConverterSides(t *testing.T) {
	c := Converter{QuoteDecimals: 6, BaseDecimals: 18}
	oracle := decimal.NewFromFloat(3000.5)

	bid, err := c.BidTick(oracle)
	require.NoError(t, err)
	ask, err := c.AskTick(oracle)
	require.NoError(t, err)

	assert.True(t, c.BidPrice(bid).LessThanOrEqual(oracle))
	assert.True(t, c.AskPrice(ask).GreaterThanOrEqual(oracle))

	// 反向 book 上 tick 越小价格越高
	assert.True(t, c.AskPrice(ask-10).GreaterThan(c.AskPrice(ask)))
	assert.True(t, c.BidPrice(bid-10).LessThan(c.BidPrice(bid)))
}

func TestPriceToTickInvalid(t *testing.T) {
	_, err := PriceToTick(decimal.Zero, 6, 18)
	assert.True(t, errors.Is(err, ErrInvalidPrice))
	_, err = PriceToTick(decimal.NewFromInt(-1), 6, 18)
	assert.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestInvertTick(t *testing.T) {
	assert.Equal(t, int64(-5), InvertTick(5))
	assert.Equal(t, int64(7), InvertTick(InvertTick(7)))
}
