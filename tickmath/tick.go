// Package tickmath 负责人类价格与 venue 离散 tick 之间的换算。
//
// tick 与价格的关系为 rawPrice = 1.0001^tick，其中 rawPrice 是以最小单位计的
// quote/base 比值。ask book 使用反向价格（base/quote），因此 ask tick 取相反数。
package tickmath

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	MinTick int64 = -524287
	MaxTick int64 = 524287

	// 浮点对数在整数 tick 边界上的容差。
	epsilon = 1e-9
)

var (
	ErrInvalidPrice = errors.New("price must be positive and finite")
	ErrTickRange    = errors.New("tick out of range")

	logBase = math.Log(1.0001)
)

// PriceToTick 将 quote/base 人类价格换算为 bid book tick（向下取整）。
func PriceToTick(price decimal.Decimal, quoteDecimals, baseDecimals int32) (int64, error) {
	return priceToTick(price, quoteDecimals, baseDecimals, false)
}

// PriceToTickUp 与 PriceToTick 相同，但向上取整。
func PriceToTickUp(price decimal.Decimal, quoteDecimals, baseDecimals int32) (int64, error) {
	return priceToTick(price, quoteDecimals, baseDecimals, true)
}

func priceToTick(price decimal.Decimal, quoteDecimals, baseDecimals int32, roundUp bool) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	p, _ := price.Float64()
	if math.IsInf(p, 0) || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	x := (math.Log(p) + float64(quoteDecimals-baseDecimals)*math.Ln10) / logBase
	var tick float64
	if roundUp {
		tick = math.Ceil(x - epsilon)
	} else {
		tick = math.Floor(x + epsilon)
	}
	t := int64(tick)
	if t < MinTick || t > MaxTick {
		return 0, fmt.Errorf("%w: %d", ErrTickRange, t)
	}
	return t, nil
}

// TickToPrice 返回 bid book tick 对应的 quote/base 人类价格。
func TickToPrice(tick int64, quoteDecimals, baseDecimals int32) decimal.Decimal {
	raw := math.Pow(1.0001, float64(tick))
	return decimal.NewFromFloat(raw).Shift(baseDecimals - quoteDecimals)
}

// InvertTick 在 bid book 与反向的 ask book 之间换算 tick。
func InvertTick(tick int64) int64 {
	return -tick
}

// Converter 绑定一个市场的 token 精度。
type Converter struct {
	QuoteDecimals int32
	BaseDecimals  int32
}

// BidTick 返回不高于 price 的最近 bid tick。
func (c Converter) BidTick(price decimal.Decimal) (int64, error) {
	return PriceToTick(price, c.QuoteDecimals, c.BaseDecimals)
}

// AskTick 返回 ask book 上不低于 price 的最近 tick（已取反）。
func (c Converter) AskTick(price decimal.Decimal) (int64, error) {
	t, err := PriceToTickUp(price, c.QuoteDecimals, c.BaseDecimals)
	if err != nil {
		return 0, err
	}
	return InvertTick(t), nil
}

// BidPrice 返回 bid tick 的 quote/base 价格。
func (c Converter) BidPrice(tick int64) decimal.Decimal {
	return TickToPrice(tick, c.QuoteDecimals, c.BaseDecimals)
}

// AskPrice 返回 ask tick 的 quote/base 价格。
func (c Converter) AskPrice(tick int64) decimal.Decimal {
	return TickToPrice(InvertTick(tick), c.QuoteDecimals, c.BaseDecimals)
}
