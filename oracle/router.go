package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Router 按市场把请求分派到各自的数据源。多个市场可以共享同一个数据源。
type Router struct {
	mu      sync.Mutex
	routes  map[string]Oracle
	sources []Oracle
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Oracle)}
}

// Route 把 market 绑定到 src。
func (r *Router) Route(market string, src Oracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[market] = src
	for _, s := range r.sources {
		if s == src {
			return
		}
	}
	r.sources = append(r.sources, src)
}

// Update 并发刷新所有数据源，任一失败即返回错误。
func (r *Router) Update(ctx context.Context) error {
	r.mu.Lock()
	sources := append([]Oracle(nil), r.sources...)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error { return src.Update(gctx) })
	}
	return g.Wait()
}

// UpdateMarket 只刷新 market 绑定的数据源；数据源不支持单市场刷新时整体刷新该源。
func (r *Router) UpdateMarket(ctx context.Context, market string) error {
	r.mu.Lock()
	src, ok := r.routes[market]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	if mu, ok := src.(MarketUpdater); ok {
		return mu.UpdateMarket(ctx, market)
	}
	return src.Update(ctx)
}

func (r *Router) Price(marketID string) (decimal.Decimal, error) {
	r.mu.Lock()
	src, ok := r.routes[marketID]
	r.mu.Unlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownMarket, marketID)
	}
	return src.Price(marketID)
}
