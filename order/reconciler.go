package order

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ResidualPolicy 决定 FIFO 消耗后仍有剩余目标的 tick 如何处理。
type ResidualPolicy string

const (
	// ResidualTopUp 只补足差额。
	ResidualTopUp ResidualPolicy = "top_up"
	// ResidualLeave 保留已有挂单，不在该 tick 追加。
	ResidualLeave ResidualPolicy = "leave"
	// ResidualRebuild 撤掉该 tick 的保留挂单并按完整目标重挂。
	ResidualRebuild ResidualPolicy = "rebuild"
)

// ParseResidualPolicy maps a config string to a policy; empty means top_up.
func ParseResidualPolicy(s string) (ResidualPolicy, error) {
	switch ResidualPolicy(s) {
	case "", ResidualTopUp:
		return ResidualTopUp, nil
	case ResidualLeave, ResidualRebuild:
		return ResidualPolicy(s), nil
	}
	return "", fmt.Errorf("unknown residual policy %q", s)
}

// Disposition 是单笔挂单在一次对账中的唯一归属。
type Disposition string

const (
	DispKeep   Disposition = "keep"   // 计入目标，保留队列优先级
	DispCancel Disposition = "cancel" // 进入撤单列表
	DispSettle Disposition = "settle" // 已无可撤数量，只可能被 claim
)

// Reconciliation 是对账结果。Claims 与 Disposition 相互独立。
type Reconciliation struct {
	Batch        Batch
	Dispositions map[string]Disposition
}

// Count returns how many orders ended with disposition d.
func (r Reconciliation) Count(d Disposition) int {
	n := 0
	for _, v := range r.Dispositions {
		if v == d {
			n++
		}
	}
	return n
}

// ReconcilerConfig 对账器配置
type ReconcilerConfig struct {
	MinOrderSize  decimal.Decimal
	SizePrecision int32
	Policy        ResidualPolicy
}

// Reconciler 将目标 ladder 与链上挂单做差，产出 claim/cancel/make。
// 无状态，可并发使用。
type Reconciler struct {
	constraints Constraints
	policy      ResidualPolicy
}

// NewReconciler 创建对账器
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Policy == "" {
		cfg.Policy = ResidualTopUp
	}
	return &Reconciler{
		constraints: Constraints{MinOrderSize: cfg.MinOrderSize, SizePrecision: cfg.SizePrecision},
		policy:      cfg.Policy,
	}
}

// Reconcile 逐个 side/tick 分组处理：
//  1. 组内按 OrderIndex 升序遍历，cancelable 不超过剩余目标的挂单被保留并扣减目标，
//     第一笔放不下的挂单及其后所有挂单都进入撤单候选，只牺牲队尾；
//  2. 剩余目标低于 minOrderSize 时该 tick 视为已覆盖；
//  3. claimable > 0 的挂单一律 claim；
//  4. 未被保留且仍有可撤数量的挂单撤销，其余标记为 settle；
//  5. 剩余目标不低于 minOrderSize 的 tick 生成 Make。
func (r *Reconciler) Reconcile(target Ladder, live []LiveOrder) Reconciliation {
	remaining := target.Clone()
	book := NewBook(live)
	res := Reconciliation{Dispositions: make(map[string]Disposition, len(live))}
	minSize := r.constraints.MinOrderSize

	book.Each(func(side Side, tick int64, orders []LiveOrder) {
		targets := remaining.Side(side)
		want, covered := targets[tick]
		var kept []LiveOrder
		stopped := false

		for _, o := range orders {
			if o.Claimable.IsPositive() {
				res.Batch.Claims = append(res.Batch.Claims, o.ID)
			}
			if settled(o) {
				res.Dispositions[o.ID] = DispSettle
				continue
			}
			if covered && !stopped && o.Cancelable.LessThanOrEqual(want) {
				want = want.Sub(o.Cancelable)
				kept = append(kept, o)
				res.Dispositions[o.ID] = DispKeep
				if want.LessThan(minSize) {
					covered = false
					delete(targets, tick)
				} else {
					targets[tick] = want
				}
				continue
			}
			stopped = true
			r.drop(&res, o)
		}

		if len(kept) == 0 || !covered {
			return
		}
		switch r.policy {
		case ResidualLeave:
			delete(targets, tick)
		case ResidualRebuild:
			for _, o := range kept {
				r.drop(&res, o)
			}
			targets[tick] = target.Side(side)[tick]
		}
	})

	res.Batch.Makes = r.makes(remaining)
	return res
}

// settled 没有可撤数量的挂单，与所在 tick 是否有目标无关。
func settled(o LiveOrder) bool {
	return !o.Open() || !o.Cancelable.IsPositive()
}

func (r *Reconciler) drop(res *Reconciliation, o LiveOrder) {
	if !settled(o) {
		res.Batch.Cancels = append(res.Batch.Cancels, o.ID)
		res.Dispositions[o.ID] = DispCancel
		return
	}
	res.Dispositions[o.ID] = DispSettle
}

func (r *Reconciler) makes(remaining Ladder) []MakeOrder {
	var out []MakeOrder
	for _, side := range []Side{Ask, Bid} {
		targets := remaining.Side(side)
		ticks := make([]int64, 0, len(targets))
		for t := range targets {
			ticks = append(ticks, t)
		}
		sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
		for _, t := range ticks {
			size := r.constraints.Quantize(targets[t])
			if r.constraints.Validate(size) != nil {
				continue
			}
			out = append(out, MakeOrder{Side: side, Tick: t, Size: size})
		}
	}
	return out
}
