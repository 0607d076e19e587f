package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

type mockSubmitter struct {
	mu      sync.Mutex
	batches []Batch
	err     error
	block   chan struct{}
	started chan struct{}
}

func (m *mockSubmitter) Submit(ctx context.Context, market string, b Batch) (Receipt, error) {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	if m.err != nil {
		return Receipt{}, m.err
	}
	return Receipt{TxHash: "0xabc", Status: "confirmed"}, nil
}

func sampleBatch() Batch {
	return Batch{
		Claims:  []string{"1"},
		Cancels: []string{"2"},
		Makes:   []MakeOrder{{Side: Bid, Tick: 10, Size: decimal.NewFromInt(1)}},
	}
}

func TestManagerSubmit(t *testing.T) {
	sub := &mockSubmitter{}
	m := NewManager(sub, BreakerConfig{})
	rcpt, err := m.Submit(context.Background(), "WETH/USDC", sampleBatch())
	if err != nil {
		t.Fatalf("submit err: %v", err)
	}
	if rcpt.TxHash != "0xabc" {
		t.Fatalf("unexpected receipt %+v", rcpt)
	}
	if len(sub.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(sub.batches))
	}
	if m.InFlight("WETH/USDC") {
		t.Fatalf("in-flight flag should be released")
	}
}

func TestManagerRejectsEmptyBatch(t *testing.T) {
	m := NewManager(&mockSubmitter{}, BreakerConfig{})
	if _, err := m.Submit(context.Background(), "m", Batch{}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestManagerSingleBatchInFlightPerMarket(t *testing.T) {
	sub := &mockSubmitter{block: make(chan struct{}), started: make(chan struct{}, 2)}
	m := NewManager(sub, BreakerConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), "m1", sampleBatch())
		done <- err
	}()
	<-sub.started

	if _, err := m.Submit(context.Background(), "m1", sampleBatch()); !errors.Is(err, ErrBatchInFlight) {
		t.Fatalf("expected ErrBatchInFlight, got %v", err)
	}
	// 其他市场不受影响
	go func() { _, _ = m.Submit(context.Background(), "m2", sampleBatch()) }()
	<-sub.started

	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit err: %v", err)
	}
}

func TestManagerBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sub := &mockSubmitter{err: errors.New("reverted")}
	var changes []string
	m := NewManager(sub, BreakerConfig{TripConsecutiveFailures: 2, Timeout: time.Hour})
	m.OnBreakerChange = func(market, from, to string) { changes = append(changes, market+":"+to) }

	for i := 0; i < 2; i++ {
		if _, err := m.Submit(context.Background(), "m", sampleBatch()); err == nil {
			t.Fatalf("expected error")
		}
	}
	_, err := m.Submit(context.Background(), "m", sampleBatch())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if len(sub.batches) != 2 {
		t.Fatalf("open breaker must not reach submitter, got %d calls", len(sub.batches))
	}
	if len(changes) != 1 || changes[0] != "m:open" {
		t.Fatalf("unexpected state changes %v", changes)
	}
	if m.BreakerState("other") != "closed" {
		t.Fatalf("breakers must be per market")
	}
}
