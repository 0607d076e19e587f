package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器，所有指标按 market 打标签
type Monitor struct {
	registry *prometheus.Registry

	// 周期指标
	cycles        *prometheus.CounterVec   // outcome: quoted / skipped / noop / error
	cycleDuration *prometheus.HistogramVec // 单周期耗时

	// 报价指标
	oraclePrice *prometheus.GaugeVec
	skew        *prometheus.GaugeVec
	askSpread   *prometheus.GaugeVec // tick
	bidSpread   *prometheus.GaugeVec // tick
	adaptive    *prometheus.CounterVec

	// 库存指标
	baseTotal  *prometheus.GaugeVec
	quoteTotal *prometheus.GaugeVec
	value      *prometheus.GaugeVec // 以 quote 计价的总价值
	pnl        *prometheus.GaugeVec // 相对持有不动的盈亏

	// 批次指标
	instructions  *prometheus.CounterVec // kind: claim / cancel / make
	batches       *prometheus.CounterVec // result: ok / failed / inflight
	submitLatency *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec // 0=closed 1=half-open 2=open
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mm",
		Subsystem: "dex",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, []string{"market"})
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"market"}, labels...))
	}

	return &Monitor{
		registry: reg,

		cycles: counter("cycles_total", "策略周期数", "outcome"),
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "单周期耗时（秒）",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"market"}),

		oraclePrice: gauge("oracle_price", "oracle 参考价"),
		skew:        gauge("skew", "库存 skew [-1,1]"),
		askSpread:   gauge("ask_spread_ticks", "ask 侧 spread（tick）"),
		bidSpread:   gauge("bid_spread_ticks", "bid 侧 spread（tick）"),
		adaptive:    counter("adaptive_spread_total", "回测给出的 spread 被采用次数"),

		baseTotal:  gauge("base_total", "base 总量（free+claimable+cancelable）"),
		quoteTotal: gauge("quote_total", "quote 总量（free+claimable+cancelable）"),
		value:      gauge("inventory_value", "库存总价值（quote 计价）"),
		pnl:        gauge("pnl", "相对初始持仓的盈亏（quote 计价）"),

		instructions: counter("instructions_total", "批次指令数", "kind"),
		batches:      counter("batches_total", "批次提交结果", "result"),
		submitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submit_latency_seconds",
			Help:      "批次提交到确认的延迟（秒）",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"market"}),
		breakerState: gauge("breaker_state", "熔断器状态(0=closed,1=half-open,2=open)"),
	}
}

// RecordCycle 记录周期结论与耗时
func (m *Monitor) RecordCycle(market, outcome string, seconds float64) {
	m.cycles.WithLabelValues(market, outcome).Inc()
	m.cycleDuration.WithLabelValues(market).Observe(seconds)
}

// UpdateQuote 记录本周期报价参数
func (m *Monitor) UpdateQuote(market string, oracle, skew float64, askSpread, bidSpread int64) {
	m.oraclePrice.WithLabelValues(market).Set(oracle)
	m.skew.WithLabelValues(market).Set(skew)
	m.askSpread.WithLabelValues(market).Set(float64(askSpread))
	m.bidSpread.WithLabelValues(market).Set(float64(bidSpread))
}

func (m *Monitor) RecordAdaptiveSpread(market string) {
	m.adaptive.WithLabelValues(market).Inc()
}

// UpdateInventory 库存与估值
func (m *Monitor) UpdateInventory(market string, base, quote, value, pnl float64) {
	m.baseTotal.WithLabelValues(market).Set(base)
	m.quoteTotal.WithLabelValues(market).Set(quote)
	m.value.WithLabelValues(market).Set(value)
	m.pnl.WithLabelValues(market).Set(pnl)
}

// RecordBatch 记录一次批次提交
func (m *Monitor) RecordBatch(market, result string, claims, cancels, makes int, seconds float64) {
	m.batches.WithLabelValues(market, result).Inc()
	m.instructions.WithLabelValues(market, "claim").Add(float64(claims))
	m.instructions.WithLabelValues(market, "cancel").Add(float64(cancels))
	m.instructions.WithLabelValues(market, "make").Add(float64(makes))
	if seconds > 0 {
		m.submitLatency.WithLabelValues(market).Observe(seconds)
	}
}

// UpdateBreakerState 熔断器状态
func (m *Monitor) UpdateBreakerState(market, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(market).Set(v)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
