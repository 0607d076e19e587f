package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type countingOracle struct {
	*Static
	updates int
	err     error
}

func (c *countingOracle) Update(ctx context.Context) error {
	c.updates++
	return c.err
}

func TestRouterDispatchesPerMarket(t *testing.T) {
	a, _ := NewStatic(map[string]decimal.Decimal{"A": d("1"), "B": d("2")})
	c, _ := NewStatic(map[string]decimal.Decimal{"C": d("3")})
	ca := &countingOracle{Static: a}
	cc := &countingOracle{Static: c}

	r := NewRouter()
	r.Route("A", ca)
	r.Route("B", ca)
	r.Route("C", cc)

	if err := r.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ca.updates != 1 || cc.updates != 1 {
		t.Fatalf("shared source must be updated once, got %d %d", ca.updates, cc.updates)
	}
	if p, err := r.Price("C"); err != nil || !p.Equal(d("3")) {
		t.Fatalf("unexpected price %s %v", p, err)
	}
	if _, err := r.Price("Z"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestRouterUpdateError(t *testing.T) {
	s, _ := NewStatic(map[string]decimal.Decimal{"A": d("1")})
	r := NewRouter()
	r.Route("A", &countingOracle{Static: s, err: ErrStale})
	if err := r.Update(context.Background()); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestRouterUpdateMarketOnlyTouchesItsSource(t *testing.T) {
	a, _ := NewStatic(map[string]decimal.Decimal{"A": d("1")})
	b, _ := NewStatic(map[string]decimal.Decimal{"B": d("2")})
	ca := &countingOracle{Static: a}
	cb := &countingOracle{Static: b, err: ErrStale}

	r := NewRouter()
	r.Route("A", ca)
	r.Route("B", cb)

	if err := r.UpdateMarket(context.Background(), "A"); err != nil {
		t.Fatalf("market A must not see B's failure: %v", err)
	}
	if ca.updates != 1 || cb.updates != 0 {
		t.Fatalf("unexpected update counts %d %d", ca.updates, cb.updates)
	}
	if err := r.UpdateMarket(context.Background(), "B"); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if err := r.UpdateMarket(context.Background(), "Z"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}
