package sim

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// TradeRecord 一笔外部 taker 成交。
// IsTakingBidSide 为 true 表示 taker 卖出 base（吃买盘），此时 AmountIn 为 base；
// 否则 taker 买入 base，AmountOut 为 base。Price 为 quote/base。
type TradeRecord struct {
	IsTakingBidSide bool
	AmountIn        decimal.Decimal
	AmountOut       decimal.Decimal
	Price           decimal.Decimal
	BlockNumber     uint64
	LogIndex        uint
}

// Before reports (block, logIndex) ordering.
func (t TradeRecord) Before(o TradeRecord) bool {
	if t.BlockNumber != o.BlockNumber {
		return t.BlockNumber < o.BlockNumber
	}
	return t.LogIndex < o.LogIndex
}

// BaseAmount 返回成交的 base 数量。
func (t TradeRecord) BaseAmount() decimal.Decimal {
	if t.IsTakingBidSide {
		return t.AmountIn
	}
	return t.AmountOut
}

// Tape 只追加的成交记录，按 (block, logIndex) 升序保存，重复记录被忽略。
type Tape struct {
	mu     sync.RWMutex
	trades []TradeRecord
	seen   map[tradeKey]struct{}
}

type tradeKey struct {
	block uint64
	index uint
}

func NewTape() *Tape {
	return &Tape{seen: make(map[tradeKey]struct{})}
}

// Append 追加一批成交；输入顺序任意。返回实际新增条数。
func (t *Tape) Append(trades ...TradeRecord) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, tr := range trades {
		k := tradeKey{block: tr.BlockNumber, index: tr.LogIndex}
		if _, dup := t.seen[k]; dup {
			continue
		}
		t.seen[k] = struct{}{}
		t.trades = append(t.trades, tr)
		added++
	}
	if added > 0 {
		sort.SliceStable(t.trades, func(i, j int) bool { return t.trades[i].Before(t.trades[j]) })
	}
	return added
}

// Window 返回 [start, end] 区块内的成交副本。
func (t *Tape) Window(start, end uint64) []TradeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lo := sort.Search(len(t.trades), func(i int) bool { return t.trades[i].BlockNumber >= start })
	hi := sort.Search(len(t.trades), func(i int) bool { return t.trades[i].BlockNumber > end })
	if lo >= hi {
		return nil
	}
	out := make([]TradeRecord, hi-lo)
	copy(out, t.trades[lo:hi])
	return out
}

// LastPriceBefore 返回 block 之前最后一笔成交价。
func (t *Tape) LastPriceBefore(block uint64) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := sort.Search(len(t.trades), func(i int) bool { return t.trades[i].BlockNumber >= block })
	if i == 0 {
		return decimal.Zero, false
	}
	return t.trades[i-1].Price, true
}

func (t *Tape) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}

// Prune 丢弃 block 之前的成交，返回丢弃条数。
func (t *Tape) Prune(block uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := sort.Search(len(t.trades), func(i int) bool { return t.trades[i].BlockNumber >= block })
	for _, tr := range t.trades[:i] {
		delete(t.seen, tradeKey{block: tr.BlockNumber, index: tr.LogIndex})
	}
	t.trades = append(t.trades[:0:0], t.trades[i:]...)
	return i
}

// LastBlock 返回最新成交所在区块，空 tape 返回 0。
func (t *Tape) LastBlock() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.trades) == 0 {
		return 0
	}
	return t.trades[len(t.trades)-1].BlockNumber
}
