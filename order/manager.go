package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Submitter 将一个批次原子地提交到 venue，并在确认后返回。
type Submitter interface {
	Submit(ctx context.Context, market string, b Batch) (Receipt, error)
}

var (
	ErrBatchInFlight = errors.New("batch already in flight for market")
	ErrEmptyBatch    = errors.New("empty batch")
)

// BreakerConfig 熔断配置，字段含义同 gobreaker.Settings。
type BreakerConfig struct {
	MaxRequests             uint32
	Interval                time.Duration
	Timeout                 time.Duration
	TripConsecutiveFailures uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.TripConsecutiveFailures == 0 {
		c.TripConsecutiveFailures = 5
	}
	return c
}

// Manager 负责批次下发：每个市场同一时刻最多一个在途批次，提交失败计入该市场的熔断器。
type Manager struct {
	sub     Submitter
	breaker BreakerConfig

	mu       sync.Mutex
	inflight map[string]bool
	breakers map[string]*gobreaker.CircuitBreaker[Receipt]

	// OnBreakerChange 在熔断状态变化时回调，可为空。
	OnBreakerChange func(market, from, to string)
}

func NewManager(sub Submitter, cfg BreakerConfig) *Manager {
	return &Manager{
		sub:      sub,
		breaker:  cfg.withDefaults(),
		inflight: make(map[string]bool),
		breakers: make(map[string]*gobreaker.CircuitBreaker[Receipt]),
	}
}

// Submit 提交批次；同一市场已有在途批次时返回 ErrBatchInFlight，熔断打开时返回 gobreaker.ErrOpenState。
func (m *Manager) Submit(ctx context.Context, market string, b Batch) (Receipt, error) {
	if b.Empty() {
		return Receipt{}, ErrEmptyBatch
	}
	if !m.acquire(market) {
		return Receipt{}, ErrBatchInFlight
	}
	defer m.release(market)

	rcpt, err := m.breakerFor(market).Execute(func() (Receipt, error) {
		return m.sub.Submit(ctx, market, b)
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("submit %s: %w", market, err)
	}
	return rcpt, nil
}

// InFlight reports whether market currently has an outstanding batch.
func (m *Manager) InFlight(market string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[market]
}

// BreakerState 返回市场熔断器状态名。
func (m *Manager) BreakerState(market string) string {
	return m.breakerFor(market).State().String()
}

func (m *Manager) acquire(market string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[market] {
		return false
	}
	m.inflight[market] = true
	return true
}

func (m *Manager) release(market string) {
	m.mu.Lock()
	delete(m.inflight, market)
	m.mu.Unlock()
}

func (m *Manager) breakerFor(market string) *gobreaker.CircuitBreaker[Receipt] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[market]; ok {
		return cb
	}
	cfg := m.breaker
	cb := gobreaker.NewCircuitBreaker[Receipt](gobreaker.Settings{
		Name:        market,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.TripConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// 调用方取消不代表 venue 不健康
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if m.OnBreakerChange != nil {
				m.OnBreakerChange(name, from.String(), to.String())
			}
		},
	})
	m.breakers[market] = cb
	return cb
}
