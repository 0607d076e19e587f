package strategy

import "github.com/shopspring/decimal"

var (
	one  = decimal.NewFromInt(1)
	half = decimal.NewFromFloat(0.5)
)

// SpreadPair 两侧 spread（tick 数），均非负。
type SpreadPair struct {
	AskSpread int64
	BidSpread int64
}

func (s SpreadPair) Total() int64 { return s.AskSpread + s.BidSpread }

// Clamp 将两侧分别限制在 [min, max]。
func (s SpreadPair) Clamp(min, max int64) SpreadPair {
	return SpreadPair{AskSpread: clampInt(s.AskSpread, min, max), BidSpread: clampInt(s.BidSpread, min, max)}
}

// OrderSizePair 两侧单档挂单量（base）。
type OrderSizePair struct {
	AskSize decimal.Decimal
	BidSize decimal.Decimal
}

// CalcSkew = clamp(imbalance/deltaLimit, -1, 1)。正数表示 base 过多。
func CalcSkew(imbalance, deltaLimit decimal.Decimal) decimal.Decimal {
	if !deltaLimit.IsPositive() {
		return decimal.Zero
	}
	s := imbalance.Div(deltaLimit)
	if s.GreaterThan(one) {
		return one
	}
	if s.LessThan(one.Neg()) {
		return one.Neg()
	}
	return s
}

// SpreadForSkew 将 skew 线性映射到 spread 预算上：
// skew=1 时 ask 最窄（鼓励卖出）、bid 最宽；skew=-1 时相反。
// ask 侧四舍五入（远离零），bid 侧取预算余量，因此两侧之和恒等于 min+max。
func SpreadForSkew(skew decimal.Decimal, min, max int64) SpreadPair {
	width := decimal.NewFromInt(max - min)
	ask := width.Mul(half).Mul(one.Sub(skew)).Add(decimal.NewFromInt(min)).Round(0).IntPart()
	ask = clampInt(ask, min, max)
	return SpreadPair{AskSpread: ask, BidSpread: min + max - ask}
}

// SizesForSkew: askSize = orderSize*min(skew+1, 1), bidSize = orderSize*min(1-skew, 1)
func SizesForSkew(skew, orderSize decimal.Decimal) OrderSizePair {
	return OrderSizePair{
		AskSize: orderSize.Mul(decimal.Min(skew.Add(one), one)),
		BidSize: orderSize.Mul(decimal.Min(one.Sub(skew), one)),
	}
}

func clampInt(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
