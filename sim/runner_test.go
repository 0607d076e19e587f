package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerReplaysWindows(t *testing.T) {
	tape := NewTape()
	tape.Append(
		bidTrade(1, 0, "3000", "1"),
		bidTrade(105, 0, "2990", "1"),
		bidTrade(106, 0, "2980", "2"),
		askTrade(250, 0, "3001", "1"),
	)
	r := &Runner{Sim: newSim(), Tape: tape, Window: 100}
	res, err := r.Run(100, 299)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, uint64(100), res[0].StartBlock)
	assert.Equal(t, uint64(199), res[0].EndBlock)
	assert.True(t, res[0].Oracle.Equal(d("3000")))
	assert.False(t, res[0].Result.Fallback)

	assert.Equal(t, uint64(299), res[1].EndBlock)
	// 第二个窗口参考价为 2980，只有一笔吃卖盘成交，找不到盈利组合
	assert.True(t, res[1].Oracle.Equal(d("2980")))
	assert.True(t, res[1].Result.Fallback)

	s := Summarize(res)
	assert.Equal(t, 2, s.Windows)
	assert.GreaterOrEqual(t, s.Profitable, 1)
	assert.True(t, s.TotalProfit.IsPositive())
}

func TestRunnerCustomPriceAndErrors(t *testing.T) {
	r := &Runner{Sim: newSim(), Tape: NewTape(), Window: 10, Price: func(uint64) (decimal.Decimal, error) {
		return d("3000"), nil
	}}
	res, err := r.Run(0, 25)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, uint64(25), res[2].EndBlock)
	assert.Equal(t, 0, Summarize(res).Profitable)

	_, err = (&Runner{}).Run(0, 1)
	assert.Error(t, err)
	_, err = r.Run(5, 1)
	assert.Error(t, err)
}
