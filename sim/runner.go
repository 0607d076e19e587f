package sim

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceFunc 返回某区块开始时的参考价。
type PriceFunc func(block uint64) (decimal.Decimal, error)

// WindowResult 单个回测窗口的结果。
type WindowResult struct {
	StartBlock uint64
	EndBlock   uint64
	Oracle     decimal.Decimal
	Result     SpreadResult
}

// Runner 在 tape 上按固定区块窗口滚动回放 FindSpread（离线标定用）。
type Runner struct {
	Sim    *DexSimulator
	Tape   *Tape
	Window uint64
	// Price 为空时使用窗口开始前最后一笔成交价。
	Price PriceFunc
}

// Run 回放 [from, to]，每个窗口 [s, s+Window-1]。
func (r *Runner) Run(from, to uint64) ([]WindowResult, error) {
	if r.Sim == nil || r.Tape == nil {
		return nil, errors.New("runner not initialized")
	}
	if r.Window == 0 {
		return nil, errors.New("window must be > 0")
	}
	if to < from {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}
	price := r.Price
	if price == nil {
		price = r.lastTradePrice
	}

	var out []WindowResult
	for start := from; start <= to; start += r.Window {
		end := start + r.Window - 1
		if end > to {
			end = to
		}
		oracle, err := price(start)
		if err != nil {
			// 没有参考价的窗口跳过
			continue
		}
		res, err := r.Sim.FindSpread(r.Tape.Window(start, end), start, end, oracle)
		if err != nil {
			return out, fmt.Errorf("window [%d, %d]: %w", start, end, err)
		}
		out = append(out, WindowResult{StartBlock: start, EndBlock: end, Oracle: oracle, Result: res})
		if end == to {
			break
		}
	}
	return out, nil
}

func (r *Runner) lastTradePrice(block uint64) (decimal.Decimal, error) {
	p, ok := r.Tape.LastPriceBefore(block)
	if !ok {
		return decimal.Zero, fmt.Errorf("no trade before block %d", block)
	}
	return p, nil
}

// Summary 汇总多个窗口。
type Summary struct {
	Windows     int
	Profitable  int
	TotalProfit decimal.Decimal
	AvgAsk      decimal.Decimal
	AvgBid      decimal.Decimal
}

// Summarize 计算盈利窗口的平均 spread 与总利润。
func Summarize(results []WindowResult) Summary {
	s := Summary{Windows: len(results), TotalProfit: decimal.Zero, AvgAsk: decimal.Zero, AvgBid: decimal.Zero}
	var askSum, bidSum int64
	for _, w := range results {
		if w.Result.Fallback {
			continue
		}
		s.Profitable++
		s.TotalProfit = s.TotalProfit.Add(w.Result.Profit)
		askSum += w.Result.Spread.AskSpread
		bidSum += w.Result.Spread.BidSpread
	}
	if s.Profitable > 0 {
		n := decimal.NewFromInt(int64(s.Profitable))
		s.AvgAsk = decimal.NewFromInt(askSum).Div(n)
		s.AvgBid = decimal.NewFromInt(bidSum).Div(n)
	}
	return s
}
