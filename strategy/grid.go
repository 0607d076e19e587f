package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/inventory"
	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

// LadderInput 构建目标挂单所需的全部输入。
type LadderInput struct {
	Quote       Quote
	Params      Params
	Converter   tickmath.Converter
	OraclePrice decimal.Decimal
	Position    inventory.Position
	// BestBid/BestAsk 是外部盘口最优价，为零表示该侧无挂单。
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// LadderResult 目标挂单及其构建过程中的判断结果。
type LadderResult struct {
	Ladder          order.Ladder
	BidReference    int64
	AskReference    int64
	Skipped         bool // 盘口已足够紧，本周期不重新报价
	InsufficientBid bool // quote 不足，bid 侧置空
	InsufficientAsk bool // base 不足，ask 侧置空
}

// BuildLadder 展开每侧 OrderNum 档：
//
//	ask: askRef - (askSpread - orderGap*i)
//	bid: bidRef - (bidSpread - orderGap*i)
//
// 某侧所需资金超过总库存时，该侧整体置空，不做部分挂单。
func BuildLadder(in LadderInput) (LadderResult, error) {
	conv := in.Converter
	bidRef, err := conv.BidTick(in.OraclePrice)
	if err != nil {
		return LadderResult{}, fmt.Errorf("bid reference tick: %w", err)
	}
	askRef, err := conv.AskTick(in.OraclePrice)
	if err != nil {
		return LadderResult{}, fmt.Errorf("ask reference tick: %w", err)
	}
	res := LadderResult{Ladder: order.NewLadder(), BidReference: bidRef, AskReference: askRef}

	skip, err := alreadyTight(in)
	if err != nil {
		return LadderResult{}, err
	}
	if skip {
		res.Skipped = true
		return res, nil
	}

	p := in.Params
	askSize, bidSize := in.Quote.Size.AskSize, in.Quote.Size.BidSize
	needBase, needQuote := decimal.Zero, decimal.Zero
	for i := 0; i < p.OrderNum; i++ {
		offset := p.OrderGap * int64(i)
		if askSize.IsPositive() {
			tick := askRef - (in.Quote.Spread.AskSpread - offset)
			res.Ladder.Ask[tick] = askSize
		}
		if bidSize.IsPositive() {
			tick := bidRef - (in.Quote.Spread.BidSpread - offset)
			res.Ladder.Bid[tick] = bidSize
		}
	}
	// 档位重叠时后者覆盖前者，按最终 ladder 汇总所需资金
	for _, size := range res.Ladder.Ask {
		needBase = needBase.Add(size)
	}
	for tick, size := range res.Ladder.Bid {
		needQuote = needQuote.Add(size.Mul(conv.BidPrice(tick)))
	}

	if needBase.GreaterThan(in.Position.TotalBase()) {
		res.InsufficientAsk = true
		res.Ladder.Ask = make(map[int64]decimal.Decimal)
	}
	if needQuote.GreaterThan(in.Position.TotalQuote()) {
		res.InsufficientBid = true
		res.Ladder.Bid = make(map[int64]decimal.Decimal)
	}
	return res, nil
}

// alreadyTight: 外部最优买卖价夹住 oracle，且二者 tick 距离不超过 spread 预算。
func alreadyTight(in LadderInput) (bool, error) {
	if !in.BestBid.IsPositive() || !in.BestAsk.IsPositive() {
		return false, nil
	}
	if in.BestBid.GreaterThan(in.OraclePrice) || in.BestAsk.LessThan(in.OraclePrice) {
		return false, nil
	}
	bid, err := in.Converter.BidTick(in.BestBid)
	if err != nil {
		return false, fmt.Errorf("best bid tick: %w", err)
	}
	ask, err := in.Converter.BidTick(in.BestAsk)
	if err != nil {
		return false, fmt.Errorf("best ask tick: %w", err)
	}
	return ask-bid <= in.Params.SpreadBudget(), nil
}
