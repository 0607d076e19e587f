// Package oracle 提供外部参考价。策略只依赖 Oracle 接口，不关心具体数据源。
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice  = errors.New("oracle: invalid price")
	ErrUnknownMarket = errors.New("oracle: unknown market")
	ErrStale         = errors.New("oracle: stale price")
)

// Oracle 每个周期先 Update 再读取 Price。
type Oracle interface {
	Update(ctx context.Context) error
	Price(marketID string) (decimal.Decimal, error)
}

// MarketUpdater 只刷新单个市场的数据源。某个市场的数据源失败不影响其他市场。
type MarketUpdater interface {
	UpdateMarket(ctx context.Context, marketID string) error
}

// priceBook 是各数据源共享的价格缓存。
type priceBook struct {
	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	updated map[string]time.Time
}

func newPriceBook() *priceBook {
	return &priceBook{
		prices:  make(map[string]decimal.Decimal),
		updated: make(map[string]time.Time),
	}
}

func (b *priceBook) set(market string, price decimal.Decimal, at time.Time) error {
	if err := Validate(price); err != nil {
		return fmt.Errorf("%s: %w", market, err)
	}
	b.mu.Lock()
	b.prices[market] = price
	b.updated[market] = at
	b.mu.Unlock()
	return nil
}

func (b *priceBook) get(market string) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[market]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	return p, nil
}

// age 返回市场价格距上次更新的时长，从未更新返回 false。
func (b *priceBook) age(market string, now time.Time) (time.Duration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.updated[market]
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}

// Validate 价格必须为正。
func Validate(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	return nil
}

// Static 固定价格，dry run 与测试用。Set 可在运行中修改。
type Static struct {
	book *priceBook
}

func NewStatic(prices map[string]decimal.Decimal) (*Static, error) {
	s := &Static{book: newPriceBook()}
	now := time.Now()
	for m, p := range prices {
		if err := s.book.set(m, p, now); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Static) Update(context.Context) error { return nil }

func (s *Static) UpdateMarket(context.Context, string) error { return nil }

func (s *Static) Price(marketID string) (decimal.Decimal, error) { return s.book.get(marketID) }

func (s *Static) Set(marketID string, price decimal.Decimal) error {
	return s.book.set(marketID, price, time.Now())
}
