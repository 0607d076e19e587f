package sim

import (
	"errors"

	"github.com/clober-dex/clober-market-maker-sub000/strategy"
	"github.com/clober-dex/clober-market-maker-sub000/tickmath"
)

// RunnerConfig 描述离线回放 Runner 的参数。
type RunnerConfig struct {
	QuoteDecimals int32
	BaseDecimals  int32
	DefaultAsk    int64 // 无盈利组合时的默认 ask spread
	DefaultBid    int64
	WindowBlocks  uint64
	Price         PriceFunc
}

// BuildRunner 基于配置组装 DexSimulator 与回放 Runner，tape 可之后再追加。
func BuildRunner(cfg RunnerConfig, tape *Tape) (*Runner, error) {
	if cfg.WindowBlocks == 0 {
		return nil, errors.New("windowBlocks must be > 0")
	}
	if cfg.DefaultAsk < 0 || cfg.DefaultBid < 0 {
		return nil, errors.New("default spreads must be >= 0")
	}
	if tape == nil {
		tape = NewTape()
	}
	conv := tickmath.Converter{QuoteDecimals: cfg.QuoteDecimals, BaseDecimals: cfg.BaseDecimals}
	return &Runner{
		Sim:    NewDexSimulator(conv, strategy.SpreadPair{AskSpread: cfg.DefaultAsk, BidSpread: cfg.DefaultBid}),
		Tape:   tape,
		Window: cfg.WindowBlocks,
		Price:  cfg.Price,
	}, nil
}
