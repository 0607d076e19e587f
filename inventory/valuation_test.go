package inventory

import "testing"

func TestValuation(t *testing.T) {
	p := Position{FreeBase: d("2"), FreeQuote: d("1000")}
	v := p.Value(d("3000"), d("1"), d("3000"))
	if !v.Value.Equal(d("7000")) || !v.HoldValue.Equal(d("6000")) || !v.PnL.Equal(d("1000")) {
		t.Fatalf("unexpected valuation %+v", v)
	}
	if !p.Imbalance(d("3000")).Equal(d("5000")) {
		t.Fatalf("unexpected imbalance %s", p.Imbalance(d("3000")))
	}
}
