package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Constraints 描述市场的下单数量约束。
type Constraints struct {
	MinOrderSize  decimal.Decimal
	SizePrecision int32 // base token 小数位
}

// Quantize 将数量截断到 base 精度。
func (c Constraints) Quantize(size decimal.Decimal) decimal.Decimal {
	if c.SizePrecision <= 0 {
		return size
	}
	return size.Truncate(c.SizePrecision)
}

// Validate 检查 Make 数量是否合法。
func (c Constraints) Validate(size decimal.Decimal) error {
	if !size.IsPositive() {
		return fmt.Errorf("size %s must be > 0", size)
	}
	if size.LessThan(c.MinOrderSize) {
		return fmt.Errorf("size %s < minOrderSize %s", size, c.MinOrderSize)
	}
	if c.SizePrecision > 0 && !size.Equal(size.Truncate(c.SizePrecision)) {
		return fmt.Errorf("size %s not aligned to %d decimals", size, c.SizePrecision)
	}
	return nil
}
