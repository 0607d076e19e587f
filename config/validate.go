package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/clober-dex/clober-market-maker-sub000/order"
)

// ErrInvalid 配置不合法；启动期遇到时进程不进入主循环。
var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

var oracleSources = map[string]bool{
	"binance":    true,
	"binance_ws": true,
	"chainlink":  true,
	"static":     true,
}

// Validate ensures required fields are present and market params are coherent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return invalid("env is required")
	}
	if cfg.Account == "" {
		return invalid("account is required (or MM_ACCOUNT)")
	}
	if cfg.Loop.IntervalMs < 0 || cfg.Loop.FetchTimeoutMs < 0 || cfg.Loop.SubmitTimeoutMs < 0 {
		return invalid("loop durations must be >= 0")
	}
	if len(cfg.Markets) == 0 {
		return invalid("markets config is required")
	}
	needsChain := false
	for _, name := range MarketNames(cfg) {
		m := cfg.Markets[name]
		if err := validateMarket(name, m); err != nil {
			return err
		}
		if m.Oracle.Source == "chainlink" || m.Params.AdaptiveSpread {
			needsChain = true
		}
	}
	if cfg.Env != "dry" {
		if cfg.Gateway.BaseURL == "" {
			return invalid("gateway.baseURL is required")
		}
		if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
			return invalid("gateway.apiKey/apiSecret is required (or env overrides)")
		}
		needsChain = true
	}
	if needsChain && cfg.Chain.RPCURL == "" {
		return invalid("chain.rpcURL is required (or MM_CHAIN_RPC_URL)")
	}
	return nil
}

func validateMarket(name string, m MarketConfig) error {
	if m.VenueID == "" {
		return invalid("market %s venueId is required", name)
	}
	if m.Base.Address == "" || m.Quote.Address == "" {
		return invalid("market %s base/quote address is required", name)
	}
	if m.Base.Decimals < 0 || m.Quote.Decimals < 0 {
		return invalid("market %s token decimals must be >= 0", name)
	}
	if !oracleSources[m.Oracle.Source] {
		return invalid("market %s oracle.source %q unknown", name, m.Oracle.Source)
	}
	switch m.Oracle.Source {
	case "binance", "binance_ws":
		if m.Oracle.Symbol == "" {
			return invalid("market %s oracle.symbol is required", name)
		}
	case "chainlink":
		if m.Oracle.Aggregator == "" {
			return invalid("market %s oracle.aggregator is required", name)
		}
	case "static":
		if m.Oracle.Price <= 0 {
			return invalid("market %s oracle.price must be > 0", name)
		}
	}
	if _, err := order.ParseResidualPolicy(m.Params.ResidualPolicy); err != nil {
		return invalid("market %s: %v", name, err)
	}
	if m.Params.AdaptiveSpread {
		if m.SwapPool.Address == "" {
			return invalid("market %s adaptiveSpread requires swapPool.address", name)
		}
		if m.Params.BacktestWindowBlocks == 0 {
			return invalid("market %s adaptiveSpread requires backtestWindowBlocks", name)
		}
	}
	if m.Params.DefaultAskSpread < 0 || m.Params.DefaultBidSpread < 0 {
		return invalid("market %s default spreads must be >= 0", name)
	}
	if err := m.Params.StrategyParams().Validate(); err != nil {
		return invalid("market %s: %v", name, err)
	}
	return nil
}

// MarketNames 返回排序后的市场名。
func MarketNames(cfg AppConfig) []string {
	names := make([]string, 0, len(cfg.Markets))
	for n := range cfg.Markets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
