package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string                  `yaml:"env"`
	Account string                  `yaml:"account"` // 做市账户地址
	Loop    LoopConfig              `yaml:"loop"`
	Gateway GatewayConfig           `yaml:"gateway"`
	Chain   ChainConfig             `yaml:"chain"`
	Oracle  OracleConfig            `yaml:"oracle"`
	Breaker BreakerConfig           `yaml:"breaker"`
	Alert   AlertConfig             `yaml:"alert"`
	Ops     OpsConfig               `yaml:"ops"`
	Log     LogConfig               `yaml:"log"`
	Markets map[string]MarketConfig `yaml:"markets"`
}

// LoopConfig 策略循环节奏。
type LoopConfig struct {
	IntervalMs      int `yaml:"intervalMs"`      // 两个周期之间的固定间隔
	FetchTimeoutMs  int `yaml:"fetchTimeoutMs"`  // 单周期行情/挂单拉取超时
	SubmitTimeoutMs int `yaml:"submitTimeoutMs"` // 批次提交（含确认）超时
}

type GatewayConfig struct {
	BaseURL   string  `yaml:"baseURL"`
	APIKey    string  `yaml:"apiKey"`
	APISecret string  `yaml:"apiSecret"`
	TimeoutMs int     `yaml:"timeoutMs"`
	RateLimit float64 `yaml:"rateLimit"` // 每秒请求数
	Burst     int     `yaml:"burst"`
}

type ChainConfig struct {
	RPCURL string `yaml:"rpcURL"`
}

type OracleConfig struct {
	BinanceRESTURL string `yaml:"binanceRestURL"`
	BinanceWSURL   string `yaml:"binanceWsURL"`
	MaxAgeSec      int    `yaml:"maxAgeSec"` // 超过该时长的价格视为过期
}

type BreakerConfig struct {
	TripConsecutiveFailures uint32 `yaml:"tripConsecutiveFailures"`
	OpenTimeoutSec          int    `yaml:"openTimeoutSec"`
}

type AlertConfig struct {
	SlackWebhook string `yaml:"slackWebhook"`
	ThrottleSec  int    `yaml:"throttleSec"`
}

type OpsConfig struct {
	Listen string `yaml:"listen"` // /metrics 与 /healthz
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json / console
	Output string `yaml:"output"` // stdout / file / both
	File   string `yaml:"file"`
}

// TokenConfig 链上 token。
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// OracleSource 市场参考价来源。
type OracleSource struct {
	Source     string  `yaml:"source"` // binance / binance_ws / chainlink / static
	Symbol     string  `yaml:"symbol"`
	Aggregator string  `yaml:"aggregator"`
	Invert     bool    `yaml:"invert"`
	Price      float64 `yaml:"price"` // static 专用
}

// SwapPoolConfig 外部 AMM 池，用于回测成交带。
type SwapPoolConfig struct {
	Address      string `yaml:"address"`
	BaseIsToken0 bool   `yaml:"baseIsToken0"`
}

// MarketConfig 单个市场。
type MarketConfig struct {
	VenueID  string         `yaml:"venueId"`
	Base     TokenConfig    `yaml:"base"`
	Quote    TokenConfig    `yaml:"quote"`
	Oracle   OracleSource   `yaml:"oracle"`
	SwapPool SwapPoolConfig `yaml:"swapPool"`
	Params   MarketParams   `yaml:"params"`
}

// MarketParams 做市参数。数量以 base 计，deltaLimit 以 quote 计。
type MarketParams struct {
	DeltaLimit           float64 `yaml:"deltaLimit"`
	MinTickSpread        int64   `yaml:"minTickSpread"`
	MaxTickSpread        int64   `yaml:"maxTickSpread"`
	OrderGap             int64   `yaml:"orderGap"`
	OrderNum             int     `yaml:"orderNum"`
	OrderSize            float64 `yaml:"orderSize"`
	MinOrderSize         float64 `yaml:"minOrderSize"`
	StartBaseAmount      float64 `yaml:"startBaseAmount"`
	StartQuoteAmount     float64 `yaml:"startQuoteAmount"`
	ResidualPolicy       string  `yaml:"residualPolicy"` // top_up / leave / rebuild
	AdaptiveSpread       bool    `yaml:"adaptiveSpread"`
	BacktestWindowBlocks uint64  `yaml:"backtestWindowBlocks"`
	DefaultAskSpread     int64   `yaml:"defaultAskSpread"`
	DefaultBidSpread     int64   `yaml:"defaultBidSpread"`
}

// EnvOverrides 敏感字段与部署相关字段可由环境变量覆盖。
type EnvOverrides struct {
	Account          string `env:"MM_ACCOUNT"`
	GatewayAPIKey    string `env:"MM_GATEWAY_API_KEY"`
	GatewayAPISecret string `env:"MM_GATEWAY_API_SECRET"`
	GatewayBaseURL   string `env:"MM_GATEWAY_BASE_URL"`
	ChainRPCURL      string `env:"MM_CHAIN_RPC_URL"`
	SlackWebhook     string `env:"MM_ALERT_SLACK_WEBHOOK"`
	OpsListen        string `env:"MM_OPS_LISTEN"`
	LogLevel         string `env:"MM_LOG_LEVEL"`
}

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	o.apply(&cfg)
	return cfg, Validate(cfg)
}

func parse(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (o EnvOverrides) apply(cfg *AppConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Account, o.Account)
	set(&cfg.Gateway.APIKey, o.GatewayAPIKey)
	set(&cfg.Gateway.APISecret, o.GatewayAPISecret)
	set(&cfg.Gateway.BaseURL, o.GatewayBaseURL)
	set(&cfg.Chain.RPCURL, o.ChainRPCURL)
	set(&cfg.Alert.SlackWebhook, o.SlackWebhook)
	set(&cfg.Ops.Listen, o.OpsListen)
	set(&cfg.Log.Level, o.LogLevel)
}

func (c *AppConfig) applyDefaults() {
	if c.Loop.IntervalMs == 0 {
		c.Loop.IntervalMs = 5000
	}
	if c.Loop.FetchTimeoutMs == 0 {
		c.Loop.FetchTimeoutMs = 10000
	}
	if c.Loop.SubmitTimeoutMs == 0 {
		c.Loop.SubmitTimeoutMs = 60000
	}
	if c.Gateway.RateLimit == 0 {
		c.Gateway.RateLimit = 10
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = 5
	}
	if c.Oracle.MaxAgeSec == 0 {
		c.Oracle.MaxAgeSec = 60
	}
	if c.Breaker.TripConsecutiveFailures == 0 {
		c.Breaker.TripConsecutiveFailures = 5
	}
	if c.Breaker.OpenTimeoutSec == 0 {
		c.Breaker.OpenTimeoutSec = 60
	}
	if c.Alert.ThrottleSec == 0 {
		c.Alert.ThrottleSec = 300
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Interval 两个周期之间的间隔。
func (l LoopConfig) Interval() time.Duration { return time.Duration(l.IntervalMs) * time.Millisecond }

func (l LoopConfig) FetchTimeout() time.Duration {
	return time.Duration(l.FetchTimeoutMs) * time.Millisecond
}

func (l LoopConfig) SubmitTimeout() time.Duration {
	return time.Duration(l.SubmitTimeoutMs) * time.Millisecond
}
