package inventory

import "github.com/shopspring/decimal"

// Valuation 以 quote 计价的库存价值及相对“持币不动”的盈亏。
type Valuation struct {
	Value     decimal.Decimal // totalBase*price + totalQuote
	HoldValue decimal.Decimal // startBase*price + startQuote
	PnL       decimal.Decimal // Value - HoldValue
}

// Value 基于 oracle 价计算当前库存价值与相对起始持仓的盈亏。
func (p Position) Value(price, startBase, startQuote decimal.Decimal) Valuation {
	value := p.TotalBase().Mul(price).Add(p.TotalQuote())
	hold := startBase.Mul(price).Add(startQuote)
	return Valuation{Value: value, HoldValue: hold, PnL: value.Sub(hold)}
}

// Imbalance 返回 totalBase*price - totalQuote，正数表示 base 过多。
func (p Position) Imbalance(price decimal.Decimal) decimal.Decimal {
	return p.TotalBase().Mul(price).Sub(p.TotalQuote())
}
