package config

import (
	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/strategy"
)

// StrategyParams 转换为策略参数（不做校验，调用方应再调用 Validate）。
func (p MarketParams) StrategyParams() strategy.Params {
	return strategy.Params{
		DeltaLimit:       decimal.NewFromFloat(p.DeltaLimit),
		MinTickSpread:    p.MinTickSpread,
		MaxTickSpread:    p.MaxTickSpread,
		OrderGap:         p.OrderGap,
		OrderNum:         p.OrderNum,
		OrderSize:        decimal.NewFromFloat(p.OrderSize),
		MinOrderSize:     decimal.NewFromFloat(p.MinOrderSize),
		StartBaseAmount:  decimal.NewFromFloat(p.StartBaseAmount),
		StartQuoteAmount: decimal.NewFromFloat(p.StartQuoteAmount),
	}
}

// Policy 返回剩余目标处理策略；空值为 top_up。
func (p MarketParams) Policy() order.ResidualPolicy {
	policy, err := order.ParseResidualPolicy(p.ResidualPolicy)
	if err != nil {
		return order.ResidualTopUp
	}
	return policy
}

// DefaultSpread 回测无盈利组合时使用的 spread；未配置时取 skew 为零时的对称值。
func (p MarketParams) DefaultSpread() strategy.SpreadPair {
	if p.DefaultAskSpread == 0 && p.DefaultBidSpread == 0 {
		return strategy.SpreadForSkew(decimal.Zero, p.MinTickSpread, p.MaxTickSpread)
	}
	return strategy.SpreadPair{AskSpread: p.DefaultAskSpread, BidSpread: p.DefaultBidSpread}
}
