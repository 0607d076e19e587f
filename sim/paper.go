package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

var (
	ErrUnknownMarket       = errors.New("paper: unknown market")
	ErrUnknownOrder        = errors.New("paper: unknown order")
	ErrInsufficientBalance = errors.New("paper: insufficient balance")
)

// PaperMarket 纸面撮合的市场定义。
type PaperMarket struct {
	Base      string
	Quote     string
	Converter tickmath.Converter
}

// PaperExchange 内存中的模拟 venue，用于 dry run：
// 按 claims -> cancels -> makes 原子地应用批次，oracle 穿过挂单价时整单成交。
type PaperExchange struct {
	mu       sync.Mutex
	markets  map[string]PaperMarket
	balances map[string]decimal.Decimal
	orders   map[string]map[string]*order.LiveOrder // market -> id -> order
	seq      uint64
	txSeq    uint64
}

func NewPaperExchange(markets map[string]PaperMarket, balances map[string]decimal.Decimal) *PaperExchange {
	p := &PaperExchange{
		markets:  make(map[string]PaperMarket, len(markets)),
		balances: make(map[string]decimal.Decimal, len(balances)),
		orders:   make(map[string]map[string]*order.LiveOrder, len(markets)),
	}
	for id, m := range markets {
		p.markets[id] = m
		p.orders[id] = make(map[string]*order.LiveOrder)
	}
	for token, amt := range balances {
		p.balances[token] = amt
	}
	return p
}

// OpenOrders 返回市场上所有挂单的快照（含仅剩 claimable 的订单）。
func (p *PaperExchange) OpenOrders(_ context.Context, market string) ([]order.LiveOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.orders[market]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	out := make([]order.LiveOrder, 0, len(book))
	for _, o := range book {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// BookTop 返回纸面盘口最优买卖价，无挂单的一侧为零。
func (p *PaperExchange) BookTop(_ context.Context, market string) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.orders[market]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	bestBid, bestAsk := decimal.Zero, decimal.Zero
	for _, o := range book {
		if !o.Cancelable.IsPositive() {
			continue
		}
		switch o.Side {
		case order.Bid:
			if o.Price.GreaterThan(bestBid) {
				bestBid = o.Price
			}
		case order.Ask:
			if bestAsk.IsZero() || o.Price.LessThan(bestAsk) {
				bestAsk = o.Price
			}
		}
	}
	return bestBid, bestAsk, nil
}

// Balances 返回指定 token 的余额，未知 token 为零。
func (p *PaperExchange) Balances(_ context.Context, _ string, tokens []string) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(tokens))
	for _, t := range tokens {
		out[t] = p.balances[t]
	}
	return out, nil
}

// Submit 原子应用批次：任一步失败则整体不生效。
func (p *PaperExchange) Submit(_ context.Context, market string, b order.Batch) (order.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[market]
	if !ok {
		return order.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}

	book := cloneBook(p.orders[market])
	balances := make(map[string]decimal.Decimal, len(p.balances))
	for k, v := range p.balances {
		balances[k] = v
	}
	seq := p.seq

	for _, id := range b.Claims {
		o, ok := book[id]
		if !ok {
			return order.Receipt{}, fmt.Errorf("%w: claim %s", ErrUnknownOrder, id)
		}
		if o.Side == order.Bid {
			balances[m.Base] = balances[m.Base].Add(o.Claimable)
		} else {
			balances[m.Quote] = balances[m.Quote].Add(o.Claimable.Mul(o.Price))
		}
		o.Claimable = decimal.Zero
	}
	for _, id := range b.Cancels {
		o, ok := book[id]
		if !ok {
			return order.Receipt{}, fmt.Errorf("%w: cancel %s", ErrUnknownOrder, id)
		}
		if o.Side == order.Bid {
			balances[m.Quote] = balances[m.Quote].Add(o.Cancelable.Mul(o.Price))
		} else {
			balances[m.Base] = balances[m.Base].Add(o.Cancelable)
		}
		o.Amount = o.Filled
		o.Cancelable = decimal.Zero
	}
	for _, mk := range b.Makes {
		var price decimal.Decimal
		var token string
		var cost decimal.Decimal
		if mk.Side == order.Bid {
			price = m.Converter.BidPrice(mk.Tick)
			token, cost = m.Quote, mk.Size.Mul(price)
		} else {
			price = m.Converter.AskPrice(mk.Tick)
			token, cost = m.Base, mk.Size
		}
		if balances[token].LessThan(cost) {
			return order.Receipt{}, fmt.Errorf("%w: %s need %s have %s", ErrInsufficientBalance, token, cost, balances[token])
		}
		balances[token] = balances[token].Sub(cost)
		seq++
		id := strconv.FormatUint(seq, 10)
		book[id] = &order.LiveOrder{
			ID:         id,
			Side:       mk.Side,
			Tick:       mk.Tick,
			OrderIndex: seq,
			Price:      price,
			Amount:     mk.Size,
			Filled:     decimal.Zero,
			Cancelable: mk.Size,
			Claimable:  decimal.Zero,
		}
	}

	for id, o := range book {
		if !o.Cancelable.IsPositive() && !o.Claimable.IsPositive() {
			delete(book, id)
		}
	}
	p.orders[market] = book
	p.balances = balances
	p.seq = seq
	p.txSeq++
	return order.Receipt{TxHash: fmt.Sprintf("paper-%d", p.txSeq), Status: "confirmed"}, nil
}

// Cross 以 price 撮合：bid 价不低于 price、ask 价不高于 price 的挂单全部成交。
// 返回成交的订单数。
func (p *PaperExchange) Cross(market string, price decimal.Decimal) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.orders[market] {
		if !o.Cancelable.IsPositive() {
			continue
		}
		hit := (o.Side == order.Bid && o.Price.GreaterThanOrEqual(price)) ||
			(o.Side == order.Ask && o.Price.LessThanOrEqual(price))
		if !hit {
			continue
		}
		o.Filled = o.Filled.Add(o.Cancelable)
		o.Claimable = o.Claimable.Add(o.Cancelable)
		o.Cancelable = decimal.Zero
		n++
	}
	return n
}

func cloneBook(src map[string]*order.LiveOrder) map[string]*order.LiveOrder {
	dst := make(map[string]*order.LiveOrder, len(src))
	for id, o := range src {
		c := *o
		dst[id] = &c
	}
	return dst
}
