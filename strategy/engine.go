package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/inventory"
)

// ErrInvalidParams 参数不合法，属于启动期致命错误。
var ErrInvalidParams = errors.New("invalid strategy params")

// Params 是单个市场的做市参数。
type Params struct {
	DeltaLimit       decimal.Decimal // skew 归一化分母（quote 计价）
	MinTickSpread    int64
	MaxTickSpread    int64
	OrderGap         int64 // 相邻档位 tick 间距
	OrderNum         int   // 每侧档位数
	OrderSize        decimal.Decimal
	MinOrderSize     decimal.Decimal
	StartBaseAmount  decimal.Decimal
	StartQuoteAmount decimal.Decimal
}

// Validate 检查参数；任一失败都应阻止进程进入主循环。
func (p Params) Validate() error {
	switch {
	case !p.DeltaLimit.IsPositive():
		return fmt.Errorf("%w: deltaLimit must be > 0", ErrInvalidParams)
	case p.MinTickSpread < 0:
		return fmt.Errorf("%w: minTickSpread must be >= 0", ErrInvalidParams)
	case p.MaxTickSpread <= p.MinTickSpread:
		return fmt.Errorf("%w: maxTickSpread (%d) must be > minTickSpread (%d)", ErrInvalidParams, p.MaxTickSpread, p.MinTickSpread)
	case p.OrderGap < 0:
		return fmt.Errorf("%w: orderGap must be >= 0", ErrInvalidParams)
	case p.OrderNum <= 0:
		return fmt.Errorf("%w: orderNum must be > 0", ErrInvalidParams)
	case !p.OrderSize.IsPositive():
		return fmt.Errorf("%w: orderSize must be > 0", ErrInvalidParams)
	case p.MinOrderSize.IsNegative():
		return fmt.Errorf("%w: minOrderSize must be >= 0", ErrInvalidParams)
	case p.StartBaseAmount.IsNegative() || p.StartQuoteAmount.IsNegative():
		return fmt.Errorf("%w: start amounts must be >= 0", ErrInvalidParams)
	}
	return nil
}

// SpreadBudget 两侧 spread 之和，skew 只在两侧之间重新分配。
func (p Params) SpreadBudget() int64 {
	return p.MinTickSpread + p.MaxTickSpread
}

// Quote 是库存 skew 计算的结果。
type Quote struct {
	Skew   decimal.Decimal
	Spread SpreadPair
	Size   OrderSizePair
}

// ComputeQuote 根据库存与 oracle 价计算 skew、两侧 spread 与挂单量。纯函数。
func ComputeQuote(pos inventory.Position, oraclePrice decimal.Decimal, p Params) Quote {
	skew := CalcSkew(pos.Imbalance(oraclePrice), p.DeltaLimit)
	return Quote{
		Skew:   skew,
		Spread: SpreadForSkew(skew, p.MinTickSpread, p.MaxTickSpread),
		Size:   SizesForSkew(skew, p.OrderSize),
	}
}
