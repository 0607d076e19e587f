package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/clober-dex/clober-market-maker-sub000/sim"
)

const uniswapV3PoolABI = `[{"anonymous":false,"inputs":[
{"indexed":true,"internalType":"address","name":"sender","type":"address"},
{"indexed":true,"internalType":"address","name":"recipient","type":"address"},
{"indexed":false,"internalType":"int256","name":"amount0","type":"int256"},
{"indexed":false,"internalType":"int256","name":"amount1","type":"int256"},
{"indexed":false,"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
{"indexed":false,"internalType":"uint128","name":"liquidity","type":"uint128"},
{"indexed":false,"internalType":"int24","name":"tick","type":"int24"}],
"name":"Swap","type":"event"}]`

var (
	parsedPool = mustABI(uniswapV3PoolABI)
	// SwapTopic = keccak256("Swap(address,address,int256,int256,uint160,uint128,int24)")
	SwapTopic = parsedPool.Events["Swap"].ID
)

// LogBackend 是拉取日志所需的 RPC 能力，*ethclient.Client 满足该接口。
type LogBackend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// SwapPool 描述一个市场对应的外部 AMM 池。
type SwapPool struct {
	Market        string
	Pool          common.Address
	BaseIsToken0  bool
	BaseDecimals  int32
	QuoteDecimals int32
}

// SwapCollector 将 Uniswap-V3 Swap 事件转换为 taker 成交记录。
type SwapCollector struct {
	backend  LogBackend
	pools    map[string]SwapPool
	MaxRange uint64 // 单次 FilterLogs 的区块跨度
}

func NewSwapCollector(b LogBackend, pools []SwapPool) *SwapCollector {
	m := make(map[string]SwapPool, len(pools))
	for _, p := range pools {
		m[p.Market] = p
	}
	return &SwapCollector{backend: b, pools: m, MaxRange: 2000}
}

func (c *SwapCollector) LatestBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

// Trades 按 MaxRange 分段拉取 [fromBlock, toBlock] 的 Swap 日志。
func (c *SwapCollector) Trades(ctx context.Context, market string, fromBlock, toBlock uint64) ([]sim.TradeRecord, error) {
	pool, ok := c.pools[market]
	if !ok {
		return nil, fmt.Errorf("no swap pool for market %s", market)
	}
	if toBlock < fromBlock {
		return nil, nil
	}
	step := c.MaxRange
	if step == 0 {
		step = 2000
	}
	var out []sim.TradeRecord
	for start := fromBlock; start <= toBlock; start += step {
		end := start + step - 1
		if end > toBlock {
			end = toBlock
		}
		logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{pool.Pool},
			Topics:    [][]common.Hash{{SwapTopic}},
		})
		if err != nil {
			return out, fmt.Errorf("filter logs [%d, %d]: %w", start, end, err)
		}
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			tr, ok, err := DecodeSwap(pool, lg)
			if err != nil {
				return out, err
			}
			if ok {
				out = append(out, tr)
			}
		}
		if end == toBlock {
			break
		}
	}
	return out, nil
}

// DecodeSwap 解析一条 Swap 日志。amount 为池子视角：正数表示池子收到。
// base 流入池子即 taker 卖出 base（吃买盘）。
func DecodeSwap(pool SwapPool, lg types.Log) (sim.TradeRecord, bool, error) {
	values, err := parsedPool.Unpack("Swap", lg.Data)
	if err != nil {
		return sim.TradeRecord{}, false, fmt.Errorf("unpack swap %s#%d: %w", lg.TxHash.Hex(), lg.Index, err)
	}
	amount0, ok0 := values[0].(*big.Int)
	amount1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return sim.TradeRecord{}, false, fmt.Errorf("unpack swap: unexpected amount types")
	}
	rawBase, rawQuote := amount0, amount1
	if !pool.BaseIsToken0 {
		rawBase, rawQuote = amount1, amount0
	}
	base := ToDecimal(rawBase, pool.BaseDecimals)
	quote := ToDecimal(rawQuote, pool.QuoteDecimals)
	if base.IsZero() || quote.IsZero() {
		return sim.TradeRecord{}, false, nil
	}

	tr := sim.TradeRecord{
		IsTakingBidSide: base.IsPositive(),
		Price:           quote.Abs().Div(base.Abs()),
		BlockNumber:     lg.BlockNumber,
		LogIndex:        lg.Index,
	}
	if tr.IsTakingBidSide {
		tr.AmountIn, tr.AmountOut = base, quote.Neg()
	} else {
		tr.AmountIn, tr.AmountOut = quote, base.Neg()
	}
	if tr.AmountIn.IsNegative() || tr.AmountOut.IsNegative() {
		// 两侧同号的日志不是正常 swap
		return sim.TradeRecord{}, false, nil
	}
	return tr, true, nil
}

