package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const aggregatorABI = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var parsedAggregator = mustABI(aggregatorABI)

func mustABI(raw string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return a
}

// ChainlinkFeed 市场对应的 AggregatorV3 合约。
type ChainlinkFeed struct {
	Market     string
	Aggregator common.Address
	Invert     bool
}

// Chainlink 通过 latestRoundData 读取链上喂价，updatedAt 超过 MaxAge 视为过期。
type Chainlink struct {
	caller ethereum.ContractCaller
	feeds  []ChainlinkFeed
	MaxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	decimals map[common.Address]int32
	book     *priceBook
}

func NewChainlink(caller ethereum.ContractCaller, feeds []ChainlinkFeed, maxAge time.Duration) *Chainlink {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Chainlink{
		caller:   caller,
		feeds:    feeds,
		MaxAge:   maxAge,
		now:      time.Now,
		decimals: make(map[common.Address]int32),
		book:     newPriceBook(),
	}
}

func (c *Chainlink) Update(ctx context.Context) error {
	for _, f := range c.feeds {
		if err := c.update(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMarket 只读取 marketID 的 aggregator。
func (c *Chainlink) UpdateMarket(ctx context.Context, marketID string) error {
	for _, f := range c.feeds {
		if f.Market == marketID {
			return c.update(ctx, f)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownMarket, marketID)
}

func (c *Chainlink) update(ctx context.Context, f ChainlinkFeed) error {
	price, updatedAt, err := c.read(ctx, f.Aggregator)
	if err != nil {
		return fmt.Errorf("chainlink %s: %w", f.Market, err)
	}
	if age := c.now().Sub(updatedAt); age > c.MaxAge {
		return fmt.Errorf("%w: %s updated %s ago", ErrStale, f.Market, age.Truncate(time.Second))
	}
	if f.Invert {
		if err := Validate(price); err != nil {
			return fmt.Errorf("chainlink %s: %w", f.Market, err)
		}
		price = decimal.NewFromInt(1).DivRound(price, 18)
	}
	return c.book.set(f.Market, price, updatedAt)
}

func (c *Chainlink) Price(marketID string) (decimal.Decimal, error) { return c.book.get(marketID) }

func (c *Chainlink) read(ctx context.Context, agg common.Address) (decimal.Decimal, time.Time, error) {
	dec, err := c.feedDecimals(ctx, agg)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	out, err := c.call(ctx, agg, "latestRoundData")
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	if len(out) != 5 {
		return decimal.Zero, time.Time{}, fmt.Errorf("latestRoundData: unexpected %d outputs", len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("latestRoundData: answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("latestRoundData: updatedAt type %T", out[3])
	}
	return decimal.NewFromBigInt(answer, -dec), time.Unix(updatedAt.Int64(), 0), nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, agg common.Address) (int32, error) {
	c.mu.Lock()
	d, ok := c.decimals[agg]
	c.mu.Unlock()
	if ok {
		return d, nil
	}
	out, err := c.call(ctx, agg, "decimals")
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: type %T", out[0])
	}
	c.mu.Lock()
	c.decimals[agg] = int32(v)
	c.mu.Unlock()
	return int32(v), nil
}

func (c *Chainlink) call(ctx context.Context, to common.Address, method string) ([]interface{}, error) {
	data, err := parsedAggregator.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	out, err := parsedAggregator.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("%s unpack: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}
