// Package venue 定义策略循环消费的外部能力；具体实现见 gateway、chain 与 sim。
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/clober-dex/clober-market-maker-sub000/order"
	"github.com/clober-dex/clober-market-maker-sub000/sim"
)

// Exchange 提供挂单快照、盘口与批次提交。
type Exchange interface {
	OpenOrders(ctx context.Context, market string) ([]order.LiveOrder, error)
	// BookTop 返回外部最优买卖价，无挂单的一侧为零。
	BookTop(ctx context.Context, market string) (bestBid, bestAsk decimal.Decimal, err error)
	order.Submitter
}

// BalanceProvider 返回账户在各 token 上的可用余额。
type BalanceProvider interface {
	Balances(ctx context.Context, account string, tokens []string) (map[string]decimal.Decimal, error)
}

// TradeSource 提供区块区间内的外部 taker 成交。
type TradeSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	Trades(ctx context.Context, market string, fromBlock, toBlock uint64) ([]sim.TradeRecord, error)
}

var (
	_ Exchange        = (*sim.PaperExchange)(nil)
	_ BalanceProvider = (*sim.PaperExchange)(nil)
)
