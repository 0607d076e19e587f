package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side represents book side.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// ParseSide accepts bid/ask (and BUY/SELL as used by CEX-style payloads).
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid", "BID", "buy", "BUY":
		return Bid, nil
	case "ask", "ASK", "sell", "SELL":
		return Ask, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// LiveOrder 是 venue 上一笔挂单的快照，每个周期重新拉取，本地不修改。
// 所有数量字段均以 base 计。
type LiveOrder struct {
	ID         string
	Side       Side
	Tick       int64
	OrderIndex uint64          // 同 tick 同方向内的 FIFO 优先级
	Price      decimal.Decimal // quote/base
	Amount     decimal.Decimal
	Filled     decimal.Decimal
	Cancelable decimal.Decimal
	Claimable  decimal.Decimal
}

// Open 表示仍有未成交/未撤销的数量。
func (o LiveOrder) Open() bool {
	return !o.Amount.Equal(o.Filled)
}

// Ladder 是一个周期内的目标挂单：tick -> 期望数量。
type Ladder struct {
	Ask map[int64]decimal.Decimal
	Bid map[int64]decimal.Decimal
}

func NewLadder() Ladder {
	return Ladder{
		Ask: make(map[int64]decimal.Decimal),
		Bid: make(map[int64]decimal.Decimal),
	}
}

// Side returns the mapping for one side.
func (l Ladder) Side(s Side) map[int64]decimal.Decimal {
	if s == Ask {
		return l.Ask
	}
	return l.Bid
}

// Empty reports whether both sides are empty.
func (l Ladder) Empty() bool {
	return len(l.Ask) == 0 && len(l.Bid) == 0
}

// Clone 深拷贝，Reconcile 会消耗副本而不是调用方的 ladder。
func (l Ladder) Clone() Ladder {
	c := NewLadder()
	for t, s := range l.Ask {
		c.Ask[t] = s
	}
	for t, s := range l.Bid {
		c.Bid[t] = s
	}
	return c
}

// InstructionKind tags an Instruction.
type InstructionKind string

const (
	KindClaim  InstructionKind = "claim"
	KindCancel InstructionKind = "cancel"
	KindMake   InstructionKind = "make"
)

// Instruction is one stateless intent: Claim{id} | Cancel{id} | Make{tick, side, size}.
type Instruction struct {
	Kind InstructionKind
	ID   string
	Tick int64
	Side Side
	Size decimal.Decimal
}

func Claim(id string) Instruction  { return Instruction{Kind: KindClaim, ID: id} }
func Cancel(id string) Instruction { return Instruction{Kind: KindCancel, ID: id} }

func Make(side Side, tick int64, size decimal.Decimal) Instruction {
	return Instruction{Kind: KindMake, Side: side, Tick: tick, Size: size}
}

// MakeOrder is the payload of a Make instruction.
type MakeOrder struct {
	Side Side
	Tick int64
	Size decimal.Decimal
}

// Batch 是一个市场在一个周期内提交的全部指令，按 claims -> cancels -> makes 执行。
type Batch struct {
	Claims  []string
	Cancels []string
	Makes   []MakeOrder
}

func (b Batch) Empty() bool {
	return len(b.Claims) == 0 && len(b.Cancels) == 0 && len(b.Makes) == 0
}

// Instructions 按执行顺序展开。
func (b Batch) Instructions() []Instruction {
	out := make([]Instruction, 0, len(b.Claims)+len(b.Cancels)+len(b.Makes))
	for _, id := range b.Claims {
		out = append(out, Claim(id))
	}
	for _, id := range b.Cancels {
		out = append(out, Cancel(id))
	}
	for _, m := range b.Makes {
		out = append(out, Make(m.Side, m.Tick, m.Size))
	}
	return out
}

// Receipt 是提交并确认后的交易句柄。
type Receipt struct {
	TxHash string
	Status string
}
