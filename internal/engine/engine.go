package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/alert"
	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/logger"
	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/monitor"
	"github.com/clober-dex/clober-market-maker-sub000/inventory"
	"github.com/clober-dex/clober-market-maker-sub000/oracle"
	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/sim"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
	"github.com/clober-dex/clober-market-maker-sub000/venue"
)

// Market 一个做市市场的静态定义。
type Market struct {
	Name       string
	BaseToken  string
	QuoteToken string
	Converter  tickmath.Converter
	Settings   Settings
}

// Config 引擎配置
type Config struct {
	Account       string
	Interval      time.Duration // 两个周期之间的间隔
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration
}

// Components 引擎依赖组件
type Components struct {
	Oracle   oracle.Oracle
	Exchange venue.Exchange
	Balances venue.BalanceProvider
	Trades   venue.TradeSource // 可为空，此时不做自适应 spread
	Orders   *order.Manager
	Logger   *logger.Logger
	Alerts   *alert.Manager   // 可为空
	Monitor  *monitor.Monitor // 可为空
	// OnOracle 每周期结束时以本周期 oracle 价调用，dry run 时用来驱动纸面撮合
	OnOracle func(market string, price decimal.Decimal)
}

// CycleReport 一次周期的结果
type CycleReport struct {
	CycleID  string
	Market   string
	Decision Decision
	Receipt  order.Receipt
	Err      error
	Elapsed  time.Duration
}

type marketState struct {
	market     Market
	settings   atomic.Pointer[Settings]
	prevOracle decimal.Decimal // 仅由该市场自己的循环读写
	startBase  decimal.Decimal
	startQuote decimal.Decimal

	// 自适应 spread 的成交 tape，每周期只拉取 scanned 之后的新区块
	tape    *sim.Tape
	scanned uint64
}

// Engine 每个市场一个独立循环：fetch -> decide -> submit -> sleep。
// 某个市场的提交阻塞不影响其他市场。
type Engine struct {
	config  Config
	comp    Components
	markets map[string]*marketState

	running atomic.Bool
	last    sync.Map // market -> time.Time，最近一次完成周期的时间
}

// New 创建交易引擎
func New(cfg Config, comp Components, markets []Market) (*Engine, error) {
	if err := validateComponents(comp); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if len(markets) == 0 {
		return nil, errors.New("at least one market is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = time.Minute
	}

	e := &Engine{config: cfg, comp: comp, markets: make(map[string]*marketState, len(markets))}
	for _, m := range markets {
		if _, dup := e.markets[m.Name]; dup {
			return nil, fmt.Errorf("duplicate market %s", m.Name)
		}
		if err := m.Settings.Params.Validate(); err != nil {
			return nil, fmt.Errorf("market %s: %w", m.Name, err)
		}
		st := &marketState{
			market:     m,
			startBase:  m.Settings.Params.StartBaseAmount,
			startQuote: m.Settings.Params.StartQuoteAmount,
			tape:       sim.NewTape(),
		}
		s := m.Settings
		st.settings.Store(&s)
		e.markets[m.Name] = st
	}
	return e, nil
}

// Markets 返回排序后的市场名
func (e *Engine) Markets() []string {
	names := make([]string, 0, len(e.markets))
	for n := range e.markets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UpdateSettings 热更新某个市场的参数，下一周期生效。
func (e *Engine) UpdateSettings(market string, s Settings) error {
	st, ok := e.markets[market]
	if !ok {
		return fmt.Errorf("unknown market %s", market)
	}
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("market %s: %w", market, err)
	}
	st.settings.Store(&s)
	return nil
}

// Settings 返回某个市场当前生效的参数
func (e *Engine) Settings(market string) (Settings, bool) {
	st, ok := e.markets[market]
	if !ok {
		return Settings{}, false
	}
	return *st.settings.Load(), true
}

// Running 是否有循环在运行
func (e *Engine) Running() bool { return e.running.Load() }

// LastCycle 返回市场最近一次周期完成时间
func (e *Engine) LastCycle(market string) (time.Time, bool) {
	v, ok := e.last.Load(market)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// Run 为每个市场启动一个循环，阻塞到 ctx 结束。
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	e.comp.Logger.Info("engine starting",
		zap.Strings("markets", e.Markets()),
		zap.Duration("interval", e.config.Interval))

	var wg sync.WaitGroup
	for _, name := range e.Markets() {
		wg.Add(1)
		go func(st *marketState) {
			defer wg.Done()
			e.loop(ctx, st)
		}(e.markets[name])
	}
	wg.Wait()
	e.comp.Logger.Info("engine stopped")
	return ctx.Err()
}

func (e *Engine) loop(ctx context.Context, st *marketState) {
	for {
		e.safeCycle(ctx, st)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.config.Interval):
		}
	}
}

// safeCycle 单个周期 panic 不拖垮整个进程
func (e *Engine) safeCycle(ctx context.Context, st *marketState) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in cycle: %v", r)
			e.comp.Logger.LogError(err, map[string]interface{}{
				"market": st.market.Name,
				"stack":  string(debug.Stack()),
			})
			e.alert(alert.LevelCritical, st.market.Name, "cycle panic", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	e.cycle(ctx, st)
}

// RunOnce 对某个市场执行一个完整周期，供测试与单次执行使用。
func (e *Engine) RunOnce(ctx context.Context, market string) (CycleReport, error) {
	st, ok := e.markets[market]
	if !ok {
		return CycleReport{}, fmt.Errorf("unknown market %s", market)
	}
	rep := e.cycle(ctx, st)
	return rep, rep.Err
}

func (e *Engine) cycle(ctx context.Context, st *marketState) CycleReport {
	start := time.Now()
	m := st.market
	s := *st.settings.Load()
	rep := CycleReport{CycleID: uuid.NewString(), Market: m.Name}
	log := e.comp.Logger

	defer func() {
		rep.Elapsed = time.Since(start)
		e.last.Store(m.Name, time.Now())
		if e.comp.Monitor != nil {
			e.comp.Monitor.RecordCycle(m.Name, string(rep.Decision.Outcome), rep.Elapsed.Seconds())
		}
	}()

	snap, err := e.fetch(ctx, st, s)
	if err != nil {
		rep.Err = err
		rep.Decision.Outcome = OutcomeError
		log.LogError(err, map[string]interface{}{"market": m.Name, "cycle_id": rep.CycleID, "stage": "fetch"})
		e.alert(alert.LevelError, m.Name, "fetch failed", map[string]interface{}{"error": err.Error()})
		return rep
	}
	if e.comp.OnOracle != nil {
		// 周期结束后再推进纸面撮合，成交在下一周期的快照中体现
		defer e.comp.OnOracle(m.Name, snap.OraclePrice)
	}

	d, err := Plan(snap, m.Converter, s)
	rep.Decision = d
	if err != nil {
		rep.Err = err
		log.LogError(err, map[string]interface{}{"market": m.Name, "cycle_id": rep.CycleID, "stage": "plan"})
		e.alert(alert.LevelError, m.Name, "plan failed", map[string]interface{}{"error": err.Error()})
		return rep
	}
	st.prevOracle = snap.OraclePrice
	e.report(rep.CycleID, st, snap, d)

	if d.Outcome != OutcomeQuoted {
		return rep
	}

	batch := d.Batch()
	sctx, cancel := context.WithTimeout(ctx, e.config.SubmitTimeout)
	defer cancel()
	submitStart := time.Now()
	rcpt, err := e.comp.Orders.Submit(sctx, m.Name, batch)
	elapsed := time.Since(submitStart).Seconds()
	fields := map[string]interface{}{
		"claims":  len(batch.Claims),
		"cancels": len(batch.Cancels),
		"makes":   len(batch.Makes),
	}

	switch {
	case err == nil:
		rep.Receipt = rcpt
		fields["tx"] = rcpt.TxHash
		fields["status"] = rcpt.Status
		log.LogBatch("submitted", m.Name, rep.CycleID, fields)
		e.recordBatch(m.Name, "ok", batch, elapsed)
	case errors.Is(err, order.ErrBatchInFlight):
		log.LogWarn("batch_in_flight", map[string]interface{}{"market": m.Name, "cycle_id": rep.CycleID})
		e.recordBatch(m.Name, "inflight", order.Batch{}, 0)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		log.LogWarn("breaker_open", map[string]interface{}{"market": m.Name, "cycle_id": rep.CycleID})
		e.recordBatch(m.Name, "breaker_open", order.Batch{}, 0)
	default:
		rep.Err = err
		fields["error"] = err.Error()
		log.LogBatch("failed", m.Name, rep.CycleID, fields)
		e.recordBatch(m.Name, "failed", batch, elapsed)
		e.alert(alert.LevelError, m.Name, "batch submission failed", map[string]interface{}{"error": err.Error()})
	}
	return rep
}

// fetch 并发拉取 oracle、挂单、余额、盘口与回测窗口，任一失败则放弃本周期。
func (e *Engine) fetch(ctx context.Context, st *marketState, s Settings) (Snapshot, error) {
	m := st.market
	fctx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	var (
		snap     Snapshot
		balances map[string]decimal.Decimal
	)
	snap.PrevOraclePrice = st.prevOracle

	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		if err := e.updateOracle(gctx, m.Name); err != nil {
			return fmt.Errorf("oracle update: %w", err)
		}
		p, err := e.comp.Oracle.Price(m.Name)
		if err != nil {
			return fmt.Errorf("oracle price: %w", err)
		}
		snap.OraclePrice = p
		return nil
	})
	g.Go(func() error {
		orders, err := e.comp.Exchange.OpenOrders(gctx, m.Name)
		if err != nil {
			return fmt.Errorf("open orders: %w", err)
		}
		snap.Orders = orders
		return nil
	})
	g.Go(func() error {
		bal, err := e.comp.Balances.Balances(gctx, e.config.Account, []string{m.BaseToken, m.QuoteToken})
		if err != nil {
			return fmt.Errorf("balances: %w", err)
		}
		balances = bal
		return nil
	})
	g.Go(func() error {
		bid, ask, err := e.comp.Exchange.BookTop(gctx, m.Name)
		if err != nil {
			return fmt.Errorf("book top: %w", err)
		}
		snap.BestBid, snap.BestAsk = bid, ask
		return nil
	})
	if s.AdaptiveSpread && s.WindowBlocks > 0 && e.comp.Trades != nil {
		g.Go(func() error {
			latest, err := e.comp.Trades.LatestBlock(gctx)
			if err != nil {
				return fmt.Errorf("latest block: %w", err)
			}
			from := uint64(0)
			if latest+1 > s.WindowBlocks {
				from = latest + 1 - s.WindowBlocks
			}
			if err := e.collectTrades(gctx, st, from, latest); err != nil {
				return err
			}
			snap.Trades, snap.WindowStart, snap.WindowEnd = st.tape.Window(from, latest), from, latest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.Balances = inventory.Balances{Base: balances[m.BaseToken], Quote: balances[m.QuoteToken]}
	return snap, nil
}

// collectTrades 把 (scanned, latest] 的新成交追加到市场 tape，并丢弃窗口之外的旧成交。
func (e *Engine) collectTrades(ctx context.Context, st *marketState, from, latest uint64) error {
	start := from
	if st.scanned >= from {
		start = st.scanned + 1
	}
	if start <= latest {
		trades, err := e.comp.Trades.Trades(ctx, st.market.Name, start, latest)
		if err != nil {
			return fmt.Errorf("trades: %w", err)
		}
		st.tape.Append(trades...)
		st.scanned = latest
	}
	st.tape.Prune(from)
	return nil
}

// updateOracle 优先只刷新本市场的数据源，避免其他市场的喂价故障拖垮本市场。
func (e *Engine) updateOracle(ctx context.Context, market string) error {
	if mu, ok := e.comp.Oracle.(oracle.MarketUpdater); ok {
		return mu.UpdateMarket(ctx, market)
	}
	return e.comp.Oracle.Update(ctx)
}

// report 记录周期日志与指标
func (e *Engine) report(cycleID string, st *marketState, snap Snapshot, d Decision) {
	m := st.market
	log := e.comp.Logger
	val := d.Position.Value(snap.OraclePrice, st.startBase, st.startQuote)

	fields := map[string]interface{}{
		"oracle":     snap.OraclePrice.String(),
		"skew":       d.Quote.Skew.StringFixed(4),
		"ask_spread": d.Quote.Spread.AskSpread,
		"bid_spread": d.Quote.Spread.BidSpread,
		"base":       d.Position.TotalBase().String(),
		"quote":      d.Position.TotalQuote().String(),
		"value":      val.Value.StringFixed(6),
		"pnl":        val.PnL.StringFixed(6),
	}
	if d.Backtest != nil {
		fields["backtest_trades"] = d.Backtest.Trades
		fields["backtest_profit"] = d.Backtest.Profit.String()
		fields["backtest_fallback"] = d.Backtest.Fallback
	}
	if d.Outcome == OutcomeQuoted || d.Outcome == OutcomeNoop {
		fields["keep"] = d.Reconciliation.Count(order.DispKeep)
		fields["cancel"] = d.Reconciliation.Count(order.DispCancel)
		fields["settle"] = d.Reconciliation.Count(order.DispSettle)
	}
	log.LogCycle(string(d.Outcome), m.Name, cycleID, fields)

	if d.Ladder.InsufficientBid || d.Ladder.InsufficientAsk {
		warn := map[string]interface{}{
			"market":           m.Name,
			"cycle_id":         cycleID,
			"insufficient_bid": d.Ladder.InsufficientBid,
			"insufficient_ask": d.Ladder.InsufficientAsk,
		}
		log.LogWarn("insufficient_inventory", warn)
		e.alert(alert.LevelWarning, m.Name, "insufficient inventory", warn)
	}

	if e.comp.Monitor == nil {
		return
	}
	mon := e.comp.Monitor
	mon.UpdateQuote(m.Name, snap.OraclePrice.InexactFloat64(), d.Quote.Skew.InexactFloat64(),
		d.Quote.Spread.AskSpread, d.Quote.Spread.BidSpread)
	mon.UpdateInventory(m.Name, d.Position.TotalBase().InexactFloat64(), d.Position.TotalQuote().InexactFloat64(),
		val.Value.InexactFloat64(), val.PnL.InexactFloat64())
	if d.AdaptiveUsed {
		mon.RecordAdaptiveSpread(m.Name)
	}
}

func (e *Engine) recordBatch(market, result string, b order.Batch, seconds float64) {
	if e.comp.Monitor == nil {
		return
	}
	e.comp.Monitor.RecordBatch(market, result, len(b.Claims), len(b.Cancels), len(b.Makes), seconds)
}

func (e *Engine) alert(level alert.Level, market, msg string, fields map[string]interface{}) {
	if e.comp.Alerts == nil {
		return
	}
	if err := e.comp.Alerts.Send(alert.Alert{Level: level, Market: market, Message: msg, Fields: fields}); err != nil {
		e.comp.Logger.Warn("alert delivery failed", zap.Error(err))
	}
}

// validateComponents 验证组件
func validateComponents(c Components) error {
	switch {
	case c.Oracle == nil:
		return errors.New("oracle is required")
	case c.Exchange == nil:
		return errors.New("exchange is required")
	case c.Balances == nil:
		return errors.New("balance provider is required")
	case c.Orders == nil:
		return errors.New("order manager is required")
	case c.Logger == nil:
		return errors.New("logger is required")
	}
	return nil
}
