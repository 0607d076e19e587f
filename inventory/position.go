package inventory

import "github.com/shopspring/decimal"

// Position 是某个市场一个周期内的库存快照，所有字段非负。
// 每个周期由余额与挂单快照重新构建，不跨周期保存。
type Position struct {
	FreeBase        decimal.Decimal
	FreeQuote       decimal.Decimal
	ClaimableBase   decimal.Decimal
	ClaimableQuote  decimal.Decimal
	CancelableBase  decimal.Decimal
	CancelableQuote decimal.Decimal
}

// TotalBase = free + claimable + cancelable
func (p Position) TotalBase() decimal.Decimal {
	return p.FreeBase.Add(p.ClaimableBase).Add(p.CancelableBase)
}

// TotalQuote = free + claimable + cancelable
func (p Position) TotalQuote() decimal.Decimal {
	return p.FreeQuote.Add(p.ClaimableQuote).Add(p.CancelableQuote)
}

// Fields 用于日志。
func (p Position) Fields() map[string]interface{} {
	return map[string]interface{}{
		"free_base":        p.FreeBase.String(),
		"free_quote":       p.FreeQuote.String(),
		"claimable_base":   p.ClaimableBase.String(),
		"claimable_quote":  p.ClaimableQuote.String(),
		"cancelable_base":  p.CancelableBase.String(),
		"cancelable_quote": p.CancelableQuote.String(),
	}
}
