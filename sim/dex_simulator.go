package sim

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/strategy"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

// SpreadResult 回测得到的最优挂单价及其对应 tick spread。
type SpreadResult struct {
	Spread         strategy.SpreadPair
	Profit         decimal.Decimal // quote 计价
	TargetAskPrice decimal.Decimal
	TargetBidPrice decimal.Decimal
	Trades         int  // 窗口内成交笔数
	Fallback       bool // 未找到盈利组合，使用默认 spread
}

// DexSimulator 用历史 taker 成交回测使 maker 盈利最大的买卖价。
type DexSimulator struct {
	Converter     tickmath.Converter
	DefaultSpread strategy.SpreadPair
}

func NewDexSimulator(conv tickmath.Converter, defaults strategy.SpreadPair) *DexSimulator {
	return &DexSimulator{Converter: conv, DefaultSpread: defaults}
}

// FindSpread 在 [startBlock, endBlock] 窗口内穷举 (bid, ask) 候选价对：
// 候选 bid 为窗口内不高于 oracle 的吃买盘成交价加上 oracle 本身，ask 对称。
// 价格严格低于 bid 的吃买盘成交会先成交我方 bid（+base, -base*bid），
// 价格严格高于 ask 的吃卖盘成交会先成交我方 ask（-base, +base*ask）。
// 利润 = quote 变化 + base 变化 * oracle，取严格最大且 > 0 的组合。
func (s *DexSimulator) FindSpread(trades []TradeRecord, startBlock, endBlock uint64, previousOraclePrice decimal.Decimal) (SpreadResult, error) {
	if !previousOraclePrice.IsPositive() {
		return SpreadResult{}, fmt.Errorf("%w: previous oracle price %s", tickmath.ErrInvalidPrice, previousOraclePrice)
	}
	oracle := previousOraclePrice

	var bidTrades, askTrades []TradeRecord
	for _, t := range trades {
		if t.BlockNumber < startBlock || t.BlockNumber > endBlock {
			continue
		}
		if t.IsTakingBidSide {
			bidTrades = append(bidTrades, t)
		} else {
			askTrades = append(askTrades, t)
		}
	}
	windowSize := len(bidTrades) + len(askTrades)

	bidCandidates := candidates(bidTrades, oracle, func(p decimal.Decimal) bool { return p.LessThanOrEqual(oracle) }, true)
	askCandidates := candidates(askTrades, oracle, func(p decimal.Decimal) bool { return p.GreaterThanOrEqual(oracle) }, false)

	bidProfit := make([]decimal.Decimal, len(bidCandidates))
	for i, bid := range bidCandidates {
		bidProfit[i] = sideProfit(bidTrades, oracle, func(t TradeRecord) bool { return t.Price.LessThan(bid) }, bid, true)
	}
	askProfit := make([]decimal.Decimal, len(askCandidates))
	for i, ask := range askCandidates {
		askProfit[i] = sideProfit(askTrades, oracle, func(t TradeRecord) bool { return t.Price.GreaterThan(ask) }, ask, false)
	}

	best := decimal.Zero
	bestBid, bestAsk := -1, -1
	for i, bid := range bidCandidates {
		for j, ask := range askCandidates {
			if !ask.GreaterThan(bid) {
				continue
			}
			profit := bidProfit[i].Add(askProfit[j])
			if profit.GreaterThan(best) {
				best, bestBid, bestAsk = profit, i, j
			}
		}
	}

	if bestBid < 0 {
		return SpreadResult{
			Spread:         s.DefaultSpread,
			Profit:         decimal.Zero,
			TargetAskPrice: oracle,
			TargetBidPrice: oracle,
			Trades:         windowSize,
			Fallback:       true,
		}, nil
	}

	res := SpreadResult{
		Profit:         best,
		TargetBidPrice: bidCandidates[bestBid],
		TargetAskPrice: askCandidates[bestAsk],
		Trades:         windowSize,
	}
	spread, err := s.tickSpreads(oracle, res.TargetBidPrice, res.TargetAskPrice)
	if err != nil {
		return SpreadResult{}, err
	}
	res.Spread = spread
	return res, nil
}

// tickSpreads 将目标价换算成相对 oracle 参考 tick 的 spread。
func (s *DexSimulator) tickSpreads(oracle, bid, ask decimal.Decimal) (strategy.SpreadPair, error) {
	conv := s.Converter
	bidRef, err := conv.BidTick(oracle)
	if err != nil {
		return strategy.SpreadPair{}, err
	}
	askRef, err := conv.AskTick(oracle)
	if err != nil {
		return strategy.SpreadPair{}, err
	}
	bidTick, err := conv.BidTick(bid)
	if err != nil {
		return strategy.SpreadPair{}, err
	}
	askTick, err := conv.AskTick(ask)
	if err != nil {
		return strategy.SpreadPair{}, err
	}
	sp := strategy.SpreadPair{AskSpread: askRef - askTick, BidSpread: bidRef - bidTick}
	if sp.AskSpread < 0 {
		sp.AskSpread = 0
	}
	if sp.BidSpread < 0 {
		sp.BidSpread = 0
	}
	return sp, nil
}

// candidates 去重后排序：bid 降序、ask 升序，靠近 oracle 的优先，平局时保留更窄的组合。
func candidates(trades []TradeRecord, oracle decimal.Decimal, keep func(decimal.Decimal) bool, descending bool) []decimal.Decimal {
	out := []decimal.Decimal{oracle}
	seen := map[string]struct{}{oracle.String(): {}}
	for _, t := range trades {
		if !keep(t.Price) {
			continue
		}
		k := t.Price.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t.Price)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].GreaterThan(out[j])
		}
		return out[i].LessThan(out[j])
	})
	return out
}

func sideProfit(trades []TradeRecord, oracle decimal.Decimal, fills func(TradeRecord) bool, price decimal.Decimal, bid bool) decimal.Decimal {
	baseDelta, quoteDelta := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if !fills(t) {
			continue
		}
		amount := t.BaseAmount()
		if bid {
			baseDelta = baseDelta.Add(amount)
			quoteDelta = quoteDelta.Sub(amount.Mul(price))
		} else {
			baseDelta = baseDelta.Sub(amount)
			quoteDelta = quoteDelta.Add(amount.Mul(price))
		}
	}
	return quoteDelta.Add(baseDelta.Mul(oracle))
}
