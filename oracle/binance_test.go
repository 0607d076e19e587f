package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBinanceUpdate(t *testing.T) {
	symbols := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			http.NotFound(w, r)
			return
		}
		symbols <- r.URL.Query().Get("symbols")
		_, _ = w.Write([]byte(`[{"symbol":"ETHUSDC","price":"3000.50"},{"symbol":"USDCDAI","price":"0.5"}]`))
	}))
	defer srv.Close()

	b := NewBinance(srv.URL, []Feed{
		{Market: "WETH/USDC", Symbol: "ETHUSDC"},
		{Market: "DAI/USDC", Symbol: "USDCDAI", Invert: true},
	}, time.Second)
	if err := b.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := <-symbols; got != `["ETHUSDC","USDCDAI"]` {
		t.Fatalf("unexpected symbols query %q", got)
	}
	p, err := b.Price("WETH/USDC")
	if err != nil || !p.Equal(d("3000.5")) {
		t.Fatalf("unexpected price %s %v", p, err)
	}
	p, _ = b.Price("DAI/USDC")
	if !p.Equal(d("2")) {
		t.Fatalf("expected inverted price 2, got %s", p)
	}
}

func TestBinanceUpdateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbols") {
		case `["BAD"]`:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		case `["ZERO"]`:
			_, _ = w.Write([]byte(`[{"symbol":"ZERO","price":"0"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	if err := NewBinance(srv.URL, []Feed{{Market: "m", Symbol: "BAD"}}, time.Second).Update(ctx); err == nil {
		t.Fatalf("expected status error")
	}
	if err := NewBinance(srv.URL, []Feed{{Market: "m", Symbol: "ZERO"}}, time.Second).Update(ctx); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if err := NewBinance(srv.URL, []Feed{{Market: "m", Symbol: "MISSING"}}, time.Second).Update(ctx); err == nil {
		t.Fatalf("expected missing symbol error")
	}
}

func TestBinanceUpdateMarketRequestsOnlyItsSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") == `["ETHUSDC"]` {
			_, _ = w.Write([]byte(`[{"symbol":"ETHUSDC","price":"3000"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	b := NewBinance(srv.URL, []Feed{
		{Market: "WETH/USDC", Symbol: "ETHUSDC"},
		{Market: "X/USDC", Symbol: "DELISTED"},
	}, time.Second)
	ctx := context.Background()
	if err := b.UpdateMarket(ctx, "WETH/USDC"); err != nil {
		t.Fatalf("update market: %v", err)
	}
	if p, err := b.Price("WETH/USDC"); err != nil || !p.Equal(d("3000")) {
		t.Fatalf("unexpected price %s %v", p, err)
	}
	if err := b.UpdateMarket(ctx, "X/USDC"); err == nil {
		t.Fatalf("expected missing symbol error")
	}
	if err := b.UpdateMarket(ctx, "nope"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}
