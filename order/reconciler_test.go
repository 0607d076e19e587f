package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func live(id string, side Side, tick int64, idx uint64, amount, filled, cancelable, claimable string) LiveOrder {
	return LiveOrder{
		ID:         id,
		Side:       side,
		Tick:       tick,
		OrderIndex: idx,
		Price:      d("1"),
		Amount:     d(amount),
		Filled:     d(filled),
		Cancelable: d(cancelable),
		Claimable:  d(claimable),
	}
}

func newTestReconciler(min string, policy ResidualPolicy) *Reconciler {
	return NewReconciler(ReconcilerConfig{MinOrderSize: d(min), SizePrecision: 6, Policy: policy})
}

func TestReconcileIdempotentWhenLiveMatchesTarget(t *testing.T) {
	target := NewLadder()
	target.Ask[-200] = d("1")
	target.Ask[-190] = d("1")
	target.Bid[100] = d("2")

	orders := []LiveOrder{
		live("a1", Ask, -200, 0, "1", "0", "1", "0"),
		live("a2", Ask, -190, 0, "1", "0", "1", "0"),
		live("b1", Bid, 100, 0, "2", "0", "2", "0"),
	}
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, orders)

	assert.True(t, res.Batch.Empty(), "expected no instructions, got %+v", res.Batch)
	assert.Equal(t, 3, res.Count(DispKeep))
}

func TestReconcileFIFOKeepAndCancel(t *testing.T) {
	target := NewLadder()
	target.Bid[100] = d("5")
	orders := []LiveOrder{
		live("o1", Bid, 100, 1, "4", "0", "4", "0"),
		live("o0", Bid, 100, 0, "3", "0", "3", "0"),
	}

	// residual 2 < minOrderSize: no make
	res := newTestReconciler("2.5", ResidualTopUp).Reconcile(target, orders)
	assert.Equal(t, DispKeep, res.Dispositions["o0"])
	assert.Equal(t, DispCancel, res.Dispositions["o1"])
	assert.Equal(t, []string{"o1"}, res.Batch.Cancels)
	assert.Empty(t, res.Batch.Makes)
	assert.Empty(t, res.Batch.Claims)

	// residual 2 >= minOrderSize: top up only the shortfall
	res = newTestReconciler("1", ResidualTopUp).Reconcile(target, orders)
	require.Len(t, res.Batch.Makes, 1)
	assert.Equal(t, int64(100), res.Batch.Makes[0].Tick)
	assert.Equal(t, Bid, res.Batch.Makes[0].Side)
	assert.True(t, res.Batch.Makes[0].Size.Equal(d("2")))
	assert.Equal(t, []string{"o1"}, res.Batch.Cancels)
}

func TestReconcileFIFOStopsAtFirstOrderThatDoesNotFit(t *testing.T) {
	target := NewLadder()
	target.Bid[100] = d("5")
	orders := []LiveOrder{
		live("o0", Bid, 100, 0, "3", "0", "3", "0"),
		live("o1", Bid, 100, 1, "4", "0", "4", "0"),
		live("o2", Bid, 100, 2, "1", "0", "1", "0"),
	}
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, orders)

	// 队尾 o2 虽然放得下，也不能越过被撤的 o1 保留
	assert.Equal(t, DispKeep, res.Dispositions["o0"])
	assert.Equal(t, DispCancel, res.Dispositions["o1"])
	assert.Equal(t, DispCancel, res.Dispositions["o2"])
	assert.Equal(t, []string{"o1", "o2"}, res.Batch.Cancels)
	require.Len(t, res.Batch.Makes, 1)
	assert.True(t, res.Batch.Makes[0].Size.Equal(d("2")))
}

func TestReconcileZeroCancelableSettlesRegardlessOfTarget(t *testing.T) {
	orders := []LiveOrder{
		live("filled", Ask, -50, 0, "2", "2", "0", "2"),
		live("next", Ask, -50, 1, "1", "0", "1", "0"),
	}
	targeted := NewLadder()
	targeted.Ask[-50] = d("1")
	for name, target := range map[string]Ladder{"targeted": targeted, "empty": NewLadder()} {
		res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, orders)
		assert.Equal(t, DispSettle, res.Dispositions["filled"], name)
		assert.Equal(t, []string{"filled"}, res.Batch.Claims, name)
	}

	// 已成交的挂单不占用目标，也不阻断后面的挂单
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(targeted, orders)
	assert.Equal(t, DispKeep, res.Dispositions["next"])
	assert.Empty(t, res.Batch.Cancels)
	assert.Empty(t, res.Batch.Makes)
}

func TestReconcileDoesNotMutateTarget(t *testing.T) {
	target := NewLadder()
	target.Bid[100] = d("5")
	newTestReconciler("1", ResidualTopUp).Reconcile(target, []LiveOrder{
		live("o0", Bid, 100, 0, "3", "0", "3", "0"),
	})
	assert.True(t, target.Bid[100].Equal(d("5")))
}

func TestReconcileClaimsIndependentOfDisposition(t *testing.T) {
	target := NewLadder()
	target.Ask[-50] = d("1")
	orders := []LiveOrder{
		live("kept", Ask, -50, 0, "2", "1", "1", "0.5"),
		live("gone", Ask, -60, 0, "2", "1", "1", "1"),
		live("done", Ask, -70, 0, "1", "1", "0", "1"),
	}
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, orders)

	assert.ElementsMatch(t, []string{"kept", "gone", "done"}, res.Batch.Claims)
	assert.Equal(t, []string{"gone"}, res.Batch.Cancels)
	assert.Equal(t, DispKeep, res.Dispositions["kept"])
	assert.Equal(t, DispCancel, res.Dispositions["gone"])
	assert.Equal(t, DispSettle, res.Dispositions["done"])
	assert.Empty(t, res.Batch.Makes)
}

func TestReconcilePartitionCoversEveryOrder(t *testing.T) {
	target := NewLadder()
	target.Bid[10] = d("3")
	target.Bid[11] = d("1")
	target.Ask[-20] = d("2")
	orders := []LiveOrder{
		live("1", Bid, 10, 0, "1", "0", "1", "0"),
		live("2", Bid, 10, 1, "1", "0.5", "0.5", "0.5"),
		live("3", Bid, 10, 2, "5", "0", "5", "0"),
		live("4", Bid, 12, 0, "1", "0", "1", "0"),
		live("5", Ask, -20, 0, "3", "3", "0", "3"),
		live("6", Ask, -21, 0, "3", "3", "0", "0"),
	}
	for _, p := range []ResidualPolicy{ResidualTopUp, ResidualLeave, ResidualRebuild} {
		res := newTestReconciler("0.1", p).Reconcile(target, orders)
		require.Len(t, res.Dispositions, len(orders), "policy %s", p)
		total := res.Count(DispKeep) + res.Count(DispCancel) + res.Count(DispSettle)
		assert.Equal(t, len(orders), total, "policy %s", p)
		assert.Equal(t, len(res.Batch.Cancels), res.Count(DispCancel), "policy %s", p)

		seen := map[string]bool{}
		for _, id := range res.Batch.Cancels {
			assert.False(t, seen[id], "duplicate cancel %s", id)
			seen[id] = true
		}
	}
}

func TestReconcileNeverMakesBelowMin(t *testing.T) {
	target := NewLadder()
	target.Bid[1] = d("0.05")
	target.Bid[2] = d("0.5")
	target.Ask[-3] = d("0.09")
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, nil)
	for _, m := range res.Batch.Makes {
		assert.False(t, m.Size.LessThan(d("0.1")), "make below min: %+v", m)
	}
	require.Len(t, res.Batch.Makes, 1)
	assert.Equal(t, int64(2), res.Batch.Makes[0].Tick)
}

func TestReconcileMakesSortedAskThenBid(t *testing.T) {
	target := NewLadder()
	target.Bid[30] = d("1")
	target.Bid[10] = d("1")
	target.Ask[-5] = d("1")
	target.Ask[-9] = d("1")
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(target, nil)
	instr := res.Batch.Instructions()
	require.Len(t, instr, 4)
	assert.Equal(t, Ask, instr[0].Side)
	assert.Equal(t, int64(-9), instr[0].Tick)
	assert.Equal(t, int64(-5), instr[1].Tick)
	assert.Equal(t, int64(10), instr[2].Tick)
	assert.Equal(t, int64(30), instr[3].Tick)
}

func TestReconcileResidualPolicies(t *testing.T) {
	target := NewLadder()
	target.Bid[100] = d("5")
	orders := []LiveOrder{live("o0", Bid, 100, 0, "3", "0", "3", "0")}

	res := newTestReconciler("1", ResidualLeave).Reconcile(target, orders)
	assert.True(t, res.Batch.Empty())
	assert.Equal(t, DispKeep, res.Dispositions["o0"])

	res = newTestReconciler("1", ResidualRebuild).Reconcile(target, orders)
	assert.Equal(t, []string{"o0"}, res.Batch.Cancels)
	require.Len(t, res.Batch.Makes, 1)
	assert.True(t, res.Batch.Makes[0].Size.Equal(d("5")))
	assert.Equal(t, DispCancel, res.Dispositions["o0"])
}

func TestReconcileEmptyTargetCancelsAllOpen(t *testing.T) {
	orders := []LiveOrder{
		live("x", Bid, 1, 0, "1", "0", "1", "0"),
		live("y", Ask, -1, 0, "1", "1", "0", "0"),
	}
	res := newTestReconciler("0.1", ResidualTopUp).Reconcile(NewLadder(), orders)
	assert.Equal(t, []string{"x"}, res.Batch.Cancels)
	assert.Equal(t, DispSettle, res.Dispositions["y"])
}

func TestReconcileQuantizesMakes(t *testing.T) {
	target := NewLadder()
	target.Ask[-1] = d("1.23456789")
	res := NewReconciler(ReconcilerConfig{MinOrderSize: d("0.01"), SizePrecision: 4}).Reconcile(target, nil)
	require.Len(t, res.Batch.Makes, 1)
	assert.Equal(t, "1.2345", res.Batch.Makes[0].Size.String())
}

func TestParseResidualPolicy(t *testing.T) {
	p, err := ParseResidualPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ResidualTopUp, p)
	p, err = ParseResidualPolicy("rebuild")
	require.NoError(t, err)
	assert.Equal(t, ResidualRebuild, p)
	_, err = ParseResidualPolicy("yolo")
	assert.Error(t, err)
}
