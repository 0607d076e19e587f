package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/inventory"
	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/sim"
	"github.com/clober-dex/clober-market-maker-sub000/strategy"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

// Outcome 周期结论
type Outcome string

const (
	OutcomeQuoted  Outcome = "quoted"  // 产生非空批次
	OutcomeSkipped Outcome = "skipped" // 盘口已足够紧，不发任何指令
	OutcomeNoop    Outcome = "noop"    // 挂单已与目标一致
	OutcomeError   Outcome = "error"
)

// Settings 单个市场的决策参数，可热更新。
type Settings struct {
	Params         strategy.Params
	Policy         order.ResidualPolicy
	SizePrecision  int32 // make 数量截断精度（base token 小数位）
	AdaptiveSpread bool
	WindowBlocks   uint64
	DefaultSpread  strategy.SpreadPair // 回测无盈利组合时使用
}

// Snapshot 单周期开始时采集的全部外部状态。
type Snapshot struct {
	OraclePrice decimal.Decimal
	// PrevOraclePrice 上一周期的 oracle 价，作为回测窗口的参考价；为零时使用 OraclePrice。
	PrevOraclePrice decimal.Decimal
	Balances        inventory.Balances
	Orders          []order.LiveOrder
	BestBid         decimal.Decimal
	BestAsk         decimal.Decimal

	Trades      []sim.TradeRecord // 回测窗口内的外部成交，可为空
	WindowStart uint64
	WindowEnd   uint64
}

// Decision 决策结果。Plan 是纯函数，Decision 只依赖输入。
type Decision struct {
	Outcome        Outcome
	Position       inventory.Position
	Quote          strategy.Quote
	Backtest       *sim.SpreadResult // 未启用自适应 spread 时为 nil
	AdaptiveUsed   bool
	Ladder         strategy.LadderResult
	Reconciliation order.Reconciliation
}

// Batch 本周期要提交的批次；跳过时为空。
func (d Decision) Batch() order.Batch {
	if d.Outcome != OutcomeQuoted {
		return order.Batch{}
	}
	return d.Reconciliation.Batch
}

// Plan 执行 skew -> (回测) -> ladder -> 对账。
func Plan(snap Snapshot, conv tickmath.Converter, s Settings) (Decision, error) {
	if !snap.OraclePrice.IsPositive() {
		return Decision{Outcome: OutcomeError}, fmt.Errorf("%w: oracle price %s", tickmath.ErrInvalidPrice, snap.OraclePrice)
	}
	p := s.Params
	d := Decision{Position: inventory.FromSnapshot(snap.Balances, snap.Orders)}
	d.Quote = strategy.ComputeQuote(d.Position, snap.OraclePrice, p)

	if s.AdaptiveSpread && len(snap.Trades) > 0 {
		ref := snap.PrevOraclePrice
		if !ref.IsPositive() {
			ref = snap.OraclePrice
		}
		res, err := sim.NewDexSimulator(conv, s.DefaultSpread).FindSpread(snap.Trades, snap.WindowStart, snap.WindowEnd, ref)
		if err != nil {
			return Decision{Outcome: OutcomeError}, fmt.Errorf("backtest: %w", err)
		}
		d.Backtest = &res
		if !res.Fallback {
			d.Quote.Spread = res.Spread.Clamp(p.MinTickSpread, p.MaxTickSpread)
			d.AdaptiveUsed = true
		}
	}

	ladder, err := strategy.BuildLadder(strategy.LadderInput{
		Quote:       d.Quote,
		Params:      p,
		Converter:   conv,
		OraclePrice: snap.OraclePrice,
		Position:    d.Position,
		BestBid:     snap.BestBid,
		BestAsk:     snap.BestAsk,
	})
	if err != nil {
		return Decision{Outcome: OutcomeError}, fmt.Errorf("build ladder: %w", err)
	}
	d.Ladder = ladder
	if ladder.Skipped {
		d.Outcome = OutcomeSkipped
		return d, nil
	}

	rec := order.NewReconciler(order.ReconcilerConfig{
		MinOrderSize:  p.MinOrderSize,
		SizePrecision: s.SizePrecision,
		Policy:        s.Policy,
	})
	d.Reconciliation = rec.Reconcile(ladder.Ladder, snap.Orders)
	if d.Reconciliation.Batch.Empty() {
		d.Outcome = OutcomeNoop
	} else {
		d.Outcome = OutcomeQuoted
	}
	return d, nil
}
