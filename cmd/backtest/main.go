package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/clober-dex/clober-market-maker-sub000/chain"
	"github.com/clober-dex/clober-market-maker-sub000/config"
	"github.com/clober-dex/clober-market-maker-sub000/sim"
)

// 基于链上 Swap 日志离线回放 FindSpread，用于标定 spread 与窗口长度。
// 用法：
//
//	go run ./cmd/backtest -config config/example.yaml -market WETH/USDC -from 19000000 -to 19010000 -out windows.csv
func main() {
	cfgPath := flag.String("config", "config/example.yaml", "配置文件路径")
	market := flag.String("market", "", "市场名称（配置中的 key）")
	from := flag.Uint64("from", 0, "起始区块")
	to := flag.Uint64("to", 0, "结束区块，0 表示最新")
	window := flag.Uint64("window", 0, "窗口区块数，0 使用配置 backtestWindowBlocks")
	outPath := flag.String("out", "", "若指定则写入逐窗口 CSV")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	m, ok := cfg.Markets[*market]
	if !ok {
		log.Fatalf("market %q 不在配置中，可选: %v", *market, config.MarketNames(cfg))
	}
	if m.SwapPool.Address == "" {
		log.Fatalf("market %s 未配置 swapPool.address", *market)
	}
	if cfg.Chain.RPCURL == "" {
		log.Fatal("需要 chain.rpcURL")
	}
	win := *window
	if win == 0 {
		win = m.Params.BacktestWindowBlocks
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("连接 RPC 失败: %v", err)
	}
	defer client.Close()

	collector := chain.NewSwapCollector(client, []chain.SwapPool{{
		Market:        *market,
		Pool:          common.HexToAddress(m.SwapPool.Address),
		BaseIsToken0:  m.SwapPool.BaseIsToken0,
		BaseDecimals:  m.Base.Decimals,
		QuoteDecimals: m.Quote.Decimals,
	}})
	end := *to
	if end == 0 {
		if end, err = collector.LatestBlock(ctx); err != nil {
			log.Fatalf("获取最新区块失败: %v", err)
		}
	}
	if end < *from {
		log.Fatalf("无效区块区间 [%d, %d]", *from, end)
	}

	// 多取一个窗口，保证首个窗口也有参考价
	fetchFrom := *from
	if fetchFrom > win {
		fetchFrom -= win
	}
	trades, err := collector.Trades(ctx, *market, fetchFrom, end)
	if err != nil {
		log.Fatalf("拉取 Swap 日志失败: %v", err)
	}
	tape := sim.NewTape()
	tape.Append(trades...)
	log.Printf("market=%s trades=%d blocks=[%d, %d] lastTrade=%d", *market, tape.Len(), fetchFrom, end, tape.LastBlock())

	def := m.Params.DefaultSpread()
	runner, err := sim.BuildRunner(sim.RunnerConfig{
		QuoteDecimals: m.Quote.Decimals,
		BaseDecimals:  m.Base.Decimals,
		DefaultAsk:    def.AskSpread,
		DefaultBid:    def.BidSpread,
		WindowBlocks:  win,
	}, tape)
	if err != nil {
		log.Fatalf("初始化回放失败: %v", err)
	}
	results, err := runner.Run(*from, end)
	if err != nil {
		log.Fatalf("回放失败: %v", err)
	}

	sum := sim.Summarize(results)
	log.Printf("windows=%d profitable=%d profit=%s avgAsk=%s avgBid=%s",
		sum.Windows, sum.Profitable, sum.TotalProfit.StringFixed(6),
		sum.AvgAsk.StringFixed(2), sum.AvgBid.StringFixed(2))

	if *outPath != "" {
		if err := writeWindowsCSV(*outPath, results); err != nil {
			log.Printf("写入 CSV 失败: %v", err)
		} else {
			log.Printf("已写入: %s", *outPath)
		}
	}
}

func writeWindowsCSV(path string, results []sim.WindowResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"start_block", "end_block", "oracle", "trades", "ask_spread", "bid_spread", "profit", "fallback"}); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			strconv.FormatUint(r.StartBlock, 10),
			strconv.FormatUint(r.EndBlock, 10),
			r.Oracle.String(),
			strconv.Itoa(r.Result.Trades),
			strconv.FormatInt(r.Result.Spread.AskSpread, 10),
			strconv.FormatInt(r.Result.Spread.BidSpread, 10),
			r.Result.Profit.String(),
			fmt.Sprint(r.Result.Fallback),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
