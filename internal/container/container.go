package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clober-dex/clober-market-maker-sub000/chain"
	"github.com/clober-dex/clober-market-maker-sub000/config"
	"github.com/clober-dex/clober-market-maker-sub000/gateway"
	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/alert"
	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/logger"
	"github.com/clober-dex/clober-market-maker-sub000/infrastructure/monitor"
	"github.com/clober-dex/clober-market-maker-sub000/internal/engine"
	"github.com/clober-dex/clober-market-maker-sub000/oracle"
	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/sim"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
	"github.com/clober-dex/clober-market-maker-sub000/venue"
)

// Options 启动选项
type Options struct {
	DryRun bool // 使用纸面撮合，不连接 relayer
	// ConfigPath 非空时启用配置热更新
	ConfigPath string
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  config.AppConfig
	opts Options

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 外部依赖
	eth      *ethclient.Client
	oracle   *oracle.Router
	streams  []*oracle.BinanceStream
	exchange venue.Exchange
	paper    *sim.PaperExchange
	balances venue.BalanceProvider
	trades   venue.TradeSource

	// 核心服务
	orders *order.Manager
	engine *engine.Engine

	ops       *httpServerComponent
	lifecycle *LifecycleManager
}

// New 从配置文件创建 Container
func New(configPath string, opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = configPath
	}
	return NewFromConfig(cfg, opts), nil
}

// NewFromConfig 使用已加载的配置创建 Container
func NewFromConfig(cfg config.AppConfig, opts Options) *Container {
	if cfg.Env == "dry" {
		opts.DryRun = true
	}
	return &Container{cfg: cfg, opts: opts, lifecycle: NewLifecycleManager()}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildChain(); err != nil {
		return fmt.Errorf("build chain failed: %w", err)
	}
	if err := c.buildOracle(); err != nil {
		return fmt.Errorf("build oracle failed: %w", err)
	}
	if err := c.buildVenue(); err != nil {
		return fmt.Errorf("build venue failed: %w", err)
	}
	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built",
		zap.Bool("dry_run", c.opts.DryRun),
		zap.Strings("markets", config.MarketNames(c.cfg)))
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.Config{
		Level:   c.cfg.Log.Level,
		Format:  c.cfg.Log.Format,
		Outputs: []string{"stdout"},
	}
	switch c.cfg.Log.Output {
	case "file":
		logCfg.Outputs = []string{"file"}
	case "both":
		logCfg.Outputs = []string{"stdout", "file"}
	}
	if c.cfg.Log.File != "" {
		logCfg.OutputFile = c.cfg.Log.File
		logCfg.ErrorFile = strings.TrimSuffix(c.cfg.Log.File, ".log") + "_errors.log"
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Logger)}
	if c.cfg.Alert.SlackWebhook != "" {
		channels = append(channels, alert.NewSlackChannel("slack", c.cfg.Alert.SlackWebhook, 5*time.Second))
	}
	c.alerts = alert.NewManager(channels, time.Duration(c.cfg.Alert.ThrottleSec)*time.Second)
	return nil
}

// buildChain 只有在需要链上读取时才连接 RPC
func (c *Container) buildChain() error {
	if c.cfg.Chain.RPCURL == "" {
		return nil
	}
	needed := !c.opts.DryRun
	for _, m := range c.cfg.Markets {
		if m.Oracle.Source == "chainlink" || m.Params.AdaptiveSpread {
			needed = true
		}
	}
	if !needed {
		return nil
	}
	client, err := ethclient.Dial(c.cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	c.eth = client
	return nil
}

func (c *Container) buildOracle() error {
	c.oracle = oracle.NewRouter()
	maxAge := time.Duration(c.cfg.Oracle.MaxAgeSec) * time.Second

	var restFeeds, wsFeeds []oracle.Feed
	var clFeeds []oracle.ChainlinkFeed
	static := map[string]decimal.Decimal{}
	for _, name := range config.MarketNames(c.cfg) {
		src := c.cfg.Markets[name].Oracle
		switch src.Source {
		case "binance":
			restFeeds = append(restFeeds, oracle.Feed{Market: name, Symbol: src.Symbol, Invert: src.Invert})
		case "binance_ws":
			wsFeeds = append(wsFeeds, oracle.Feed{Market: name, Symbol: src.Symbol, Invert: src.Invert})
		case "chainlink":
			if c.eth == nil {
				return fmt.Errorf("market %s: chainlink oracle requires chain.rpcURL", name)
			}
			clFeeds = append(clFeeds, oracle.ChainlinkFeed{Market: name, Aggregator: common.HexToAddress(src.Aggregator), Invert: src.Invert})
		case "static":
			static[name] = decimal.NewFromFloat(src.Price)
		default:
			return fmt.Errorf("market %s: unknown oracle source %q", name, src.Source)
		}
	}

	if len(restFeeds) > 0 {
		b := oracle.NewBinance(c.cfg.Oracle.BinanceRESTURL, restFeeds, time.Duration(c.cfg.Gateway.TimeoutMs)*time.Millisecond)
		for _, f := range restFeeds {
			c.oracle.Route(f.Market, b)
		}
	}
	if len(wsFeeds) > 0 {
		s := oracle.NewBinanceStream(c.cfg.Oracle.BinanceWSURL, wsFeeds, maxAge)
		s.OnError(func(err error) {
			c.logger.LogWarn("oracle_stream_error", map[string]interface{}{"error": err.Error()})
		})
		c.streams = append(c.streams, s)
		for _, f := range wsFeeds {
			c.oracle.Route(f.Market, s)
		}
	}
	if len(clFeeds) > 0 {
		cl := oracle.NewChainlink(c.eth, clFeeds, maxAge)
		for _, f := range clFeeds {
			c.oracle.Route(f.Market, cl)
		}
	}
	if len(static) > 0 {
		s, err := oracle.NewStatic(static)
		if err != nil {
			return err
		}
		for m := range static {
			c.oracle.Route(m, s)
		}
	}
	return nil
}

func (c *Container) buildVenue() error {
	if c.opts.DryRun {
		markets := make(map[string]sim.PaperMarket, len(c.cfg.Markets))
		balances := map[string]decimal.Decimal{}
		for name, m := range c.cfg.Markets {
			markets[name] = sim.PaperMarket{Base: m.Base.Address, Quote: m.Quote.Address, Converter: converter(m)}
			balances[m.Base.Address] = balances[m.Base.Address].Add(decimal.NewFromFloat(m.Params.StartBaseAmount))
			balances[m.Quote.Address] = balances[m.Quote.Address].Add(decimal.NewFromFloat(m.Params.StartQuoteAmount))
		}
		c.paper = sim.NewPaperExchange(markets, balances)
		c.exchange = c.paper
		c.balances = c.paper
	} else {
		venueIDs := make(map[string]string, len(c.cfg.Markets))
		for name, m := range c.cfg.Markets {
			venueIDs[name] = m.VenueID
		}
		relay := gateway.NewRelayClient(gateway.RelayConfig{
			BaseURL:   c.cfg.Gateway.BaseURL,
			APIKey:    c.cfg.Gateway.APIKey,
			APISecret: c.cfg.Gateway.APISecret,
			Account:   c.cfg.Account,
			Timeout:   time.Duration(c.cfg.Loop.SubmitTimeoutMs) * time.Millisecond,
			Markets:   venueIDs,
		}, gateway.NewTokenBucketLimiter(c.cfg.Gateway.RateLimit, c.cfg.Gateway.Burst))
		c.exchange = relay
		if c.eth == nil {
			return fmt.Errorf("live mode requires chain.rpcURL for balances")
		}
		c.balances = chain.NewERC20Balances(c.eth)
	}

	var pools []chain.SwapPool
	for name, m := range c.cfg.Markets {
		if !m.Params.AdaptiveSpread || m.SwapPool.Address == "" {
			continue
		}
		pools = append(pools, chain.SwapPool{
			Market:        name,
			Pool:          common.HexToAddress(m.SwapPool.Address),
			BaseIsToken0:  m.SwapPool.BaseIsToken0,
			BaseDecimals:  m.Base.Decimals,
			QuoteDecimals: m.Quote.Decimals,
		})
	}
	if len(pools) > 0 && c.eth != nil {
		c.trades = chain.NewSwapCollector(c.eth, pools)
	}
	return nil
}

func (c *Container) buildEngine() error {
	c.orders = order.NewManager(c.exchange, order.BreakerConfig{
		Timeout:                 time.Duration(c.cfg.Breaker.OpenTimeoutSec) * time.Second,
		TripConsecutiveFailures: c.cfg.Breaker.TripConsecutiveFailures,
	})
	c.orders.OnBreakerChange = func(market, from, to string) {
		c.monitor.UpdateBreakerState(market, to)
		level := alert.LevelWarning
		if to == "open" {
			level = alert.LevelCritical
		}
		_ = c.alerts.Send(alert.Alert{
			Level:   level,
			Market:  market,
			Message: "submission breaker " + to,
			Fields:  map[string]interface{}{"from": from},
		})
	}

	comp := engine.Components{
		Oracle:   c.oracle,
		Exchange: c.exchange,
		Balances: c.balances,
		Orders:   c.orders,
		Logger:   c.logger,
		Alerts:   c.alerts,
		Monitor:  c.monitor,
		Trades:   c.trades,
	}
	if c.paper != nil {
		paper := c.paper
		comp.OnOracle = func(market string, price decimal.Decimal) {
			if n := paper.Cross(market, price); n > 0 {
				c.logger.Info("paper fills", zap.String("market", market), zap.Int("orders", n))
			}
		}
	}

	e, err := engine.New(engine.Config{
		Account:       c.cfg.Account,
		Interval:      c.cfg.Loop.Interval(),
		FetchTimeout:  c.cfg.Loop.FetchTimeout(),
		SubmitTimeout: c.cfg.Loop.SubmitTimeout(),
	}, comp, Markets(c.cfg))
	if err != nil {
		return err
	}
	c.engine = e
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Ops.Listen != "" {
		c.ops = &httpServerComponent{
			name:    "ops_server",
			handler: c.Router(),
			addr:    c.cfg.Ops.Listen,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.ops)
	}
	for i, s := range c.streams {
		c.lifecycle.Register(newRunComponent(fmt.Sprintf("oracle_stream_%d", i), c.logger, s.Run))
	}
	if c.opts.ConfigPath != "" {
		w := &config.Watcher{
			Path:     c.opts.ConfigPath,
			OnUpdate: c.applyConfig,
			OnError: func(err error) {
				c.logger.LogWarn("config_reload_rejected", map[string]interface{}{"error": err.Error()})
			},
		}
		c.lifecycle.Register(newRunComponent("config_watcher", c.logger, w.Start))
	}
	c.lifecycle.Register(newRunComponent("engine", c.logger, c.engine.Run))
}

// applyConfig 热更新市场参数；市场集合变化需要重启
func (c *Container) applyConfig(cfg config.AppConfig) {
	for _, m := range Markets(cfg) {
		if err := c.engine.UpdateSettings(m.Name, m.Settings); err != nil {
			c.logger.LogWarn("config_reload_skipped", map[string]interface{}{"market": m.Name, "error": err.Error()})
			continue
		}
		c.logger.Info("market params reloaded", zap.String("market", m.Name))
	}
}

// Start 启动所有组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

// Stop 停止所有组件。挂单保留在链上，下次启动时由对账接管。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if c.eth != nil {
		c.eth.Close()
	}
	_ = c.logger.Close()
	return err
}

// HealthCheck 组件健康且每个市场最近完成过周期
func (c *Container) HealthCheck() error {
	if err := c.lifecycle.CheckHealth(); err != nil {
		return err
	}
	return c.checkCycles(time.Now())
}

func (c *Container) checkCycles(now time.Time) error {
	limit := 3*c.cfg.Loop.Interval() + c.cfg.Loop.FetchTimeout() + c.cfg.Loop.SubmitTimeout()
	for _, name := range c.engine.Markets() {
		last, ok := c.engine.LastCycle(name)
		if !ok {
			continue // 尚未完成第一个周期
		}
		if age := now.Sub(last); age > limit {
			return fmt.Errorf("market %s last cycle %s ago", name, age.Truncate(time.Second))
		}
	}
	return nil
}

// Engine 返回策略引擎
func (c *Container) Engine() *engine.Engine { return c.engine }

// Logger 返回日志器
func (c *Container) Logger() *logger.Logger { return c.logger }

// Markets 将配置转换为引擎的市场定义
func Markets(cfg config.AppConfig) []engine.Market {
	out := make([]engine.Market, 0, len(cfg.Markets))
	for _, name := range config.MarketNames(cfg) {
		m := cfg.Markets[name]
		out = append(out, engine.Market{
			Name:       name,
			BaseToken:  m.Base.Address,
			QuoteToken: m.Quote.Address,
			Converter:  converter(m),
			Settings: engine.Settings{
				Params:         m.Params.StrategyParams(),
				Policy:         m.Params.Policy(),
				SizePrecision:  m.Base.Decimals,
				AdaptiveSpread: m.Params.AdaptiveSpread,
				WindowBlocks:   m.Params.BacktestWindowBlocks,
				DefaultSpread:  m.Params.DefaultSpread(),
			},
		})
	}
	return out
}

func converter(m config.MarketConfig) tickmath.Converter {
	return tickmath.Converter{QuoteDecimals: m.Quote.Decimals, BaseDecimals: m.Base.Decimals}
}
