package sim

import "testing"

func TestTapeAppendOrdersAndDedups(t *testing.T) {
	tape := NewTape()
	added := tape.Append(
		bidTrade(20, 1, "1", "1"),
		bidTrade(10, 3, "2", "1"),
		bidTrade(20, 0, "3", "1"),
	)
	if added != 3 {
		t.Fatalf("expected 3 added, got %d", added)
	}
	if tape.Append(bidTrade(10, 3, "9", "1")) != 0 {
		t.Fatalf("duplicate (block, logIndex) must be ignored")
	}
	w := tape.Window(0, 100)
	if len(w) != 3 || w[0].BlockNumber != 10 || w[1].LogIndex != 0 || w[2].LogIndex != 1 {
		t.Fatalf("unexpected order %+v", w)
	}
	if tape.LastBlock() != 20 || tape.Len() != 3 {
		t.Fatalf("unexpected tape stats")
	}
}

func TestTapeWindowAndLastPrice(t *testing.T) {
	tape := NewTape()
	tape.Append(bidTrade(10, 0, "100", "1"), bidTrade(15, 0, "101", "1"), bidTrade(30, 0, "102", "1"))

	if got := tape.Window(11, 29); len(got) != 1 || got[0].BlockNumber != 15 {
		t.Fatalf("unexpected window %+v", got)
	}
	if got := tape.Window(31, 40); got != nil {
		t.Fatalf("expected empty window")
	}
	p, ok := tape.LastPriceBefore(30)
	if !ok || !p.Equal(d("101")) {
		t.Fatalf("unexpected last price %s %v", p, ok)
	}
	if _, ok := tape.LastPriceBefore(10); ok {
		t.Fatalf("no trade before block 10")
	}
}

func TestTradeRecordBaseAmount(t *testing.T) {
	if !bidTrade(1, 0, "10", "2").BaseAmount().Equal(d("2")) {
		t.Fatalf("bid-side base leg is amountIn")
	}
	if !askTrade(1, 0, "10", "3").BaseAmount().Equal(d("3")) {
		t.Fatalf("ask-side base leg is amountOut")
	}
}

func TestTapePrune(t *testing.T) {
	tape := NewTape()
	tape.Append(
		TradeRecord{BlockNumber: 1, Price: d("1")},
		TradeRecord{BlockNumber: 2, Price: d("2")},
		TradeRecord{BlockNumber: 3, Price: d("3")},
	)
	if n := tape.Prune(3); n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}
	if tape.Len() != 1 || tape.LastBlock() != 3 {
		t.Fatalf("unexpected tape len=%d last=%d", tape.Len(), tape.LastBlock())
	}
	// 被丢弃的记录可以重新追加
	if added := tape.Append(TradeRecord{BlockNumber: 2, Price: d("2")}); added != 1 {
		t.Fatalf("expected re-append after prune, got %d", added)
	}
	if tape.Prune(0) != 0 {
		t.Fatalf("prune before first trade must be a no-op")
	}
}
