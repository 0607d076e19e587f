package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/order"
)

// Balances 是账户在一个市场两侧 token 上的可用余额。
type Balances struct {
	Base  decimal.Decimal
	Quote decimal.Decimal
}

// FromSnapshot 由余额和挂单快照构建 Position。
// bid 挂单：成交得到 base（claimable），未成交部分以 quote 锁定（cancelable * price）。
// ask 挂单：成交得到 quote（claimable * price），未成交部分以 base 锁定。
func FromSnapshot(bal Balances, orders []order.LiveOrder) Position {
	p := Position{
		FreeBase:        nonNegative(bal.Base),
		FreeQuote:       nonNegative(bal.Quote),
		ClaimableBase:   decimal.Zero,
		ClaimableQuote:  decimal.Zero,
		CancelableBase:  decimal.Zero,
		CancelableQuote: decimal.Zero,
	}
	for _, o := range orders {
		claimable := nonNegative(o.Claimable)
		cancelable := nonNegative(o.Cancelable)
		switch o.Side {
		case order.Bid:
			p.ClaimableBase = p.ClaimableBase.Add(claimable)
			p.CancelableQuote = p.CancelableQuote.Add(cancelable.Mul(o.Price))
		case order.Ask:
			p.ClaimableQuote = p.ClaimableQuote.Add(claimable.Mul(o.Price))
			p.CancelableBase = p.CancelableBase.Add(cancelable)
		}
	}
	return p
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
