package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const defaultBinanceREST = "https://api.binance.com"

// Feed 将市场映射到外部交易对；Invert 为 true 时取倒数。
type Feed struct {
	Market string
	Symbol string
	Invert bool
}

// Binance 通过 REST 批量拉取 ticker 价格。
type Binance struct {
	baseURL string
	feeds   []Feed
	client  *fasthttp.Client
	timeout time.Duration
	book    *priceBook
}

func NewBinance(baseURL string, feeds []Feed, timeout time.Duration) *Binance {
	if baseURL == "" {
		baseURL = defaultBinanceREST
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		feeds:   feeds,
		client:  &fasthttp.Client{Name: "clober-mm"},
		timeout: timeout,
		book:    newPriceBook(),
	}
}

// Update 一次请求刷新全部交易对：GET /api/v3/ticker/price?symbols=[...]
func (b *Binance) Update(ctx context.Context) error {
	return b.fetch(ctx, b.feeds)
}

// UpdateMarket 只请求 marketID 对应的交易对。
func (b *Binance) UpdateMarket(ctx context.Context, marketID string) error {
	var feeds []Feed
	for _, f := range b.feeds {
		if f.Market == marketID {
			feeds = append(feeds, f)
		}
	}
	if len(feeds) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMarket, marketID)
	}
	return b.fetch(ctx, feeds)
}

func (b *Binance) fetch(ctx context.Context, feeds []Feed) error {
	if len(feeds) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(feeds))
	for _, f := range feeds {
		symbols = append(symbols, f.Symbol)
	}
	raw, err := json.Marshal(symbols)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(b.baseURL + "/api/v3/ticker/price")
	req.Header.SetMethod(fasthttp.MethodGet)
	req.URI().QueryArgs().Set("symbols", string(raw))

	timeout := b.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if err := b.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("binance ticker: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("binance ticker: status %d: %s", resp.StatusCode(), gjson.GetBytes(resp.Body(), "msg").String())
	}

	result := gjson.ParseBytes(resp.Body())
	if !result.IsArray() {
		return fmt.Errorf("binance ticker: unexpected response")
	}
	bySymbol := make(map[string]string, len(feeds))
	for _, row := range result.Array() {
		bySymbol[row.Get("symbol").String()] = row.Get("price").String()
	}

	now := time.Now()
	for _, f := range feeds {
		raw, ok := bySymbol[f.Symbol]
		if !ok {
			return fmt.Errorf("binance ticker: missing %s", f.Symbol)
		}
		price, err := parsePrice(raw, f.Invert)
		if err != nil {
			return fmt.Errorf("binance ticker %s: %w", f.Symbol, err)
		}
		if err := b.book.set(f.Market, price, now); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binance) Price(marketID string) (decimal.Decimal, error) { return b.book.get(marketID) }

func parsePrice(raw string, invert bool) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if err := Validate(p); err != nil {
		return decimal.Zero, err
	}
	if invert {
		p = decimal.NewFromInt(1).DivRound(p, 18)
	}
	return p, nil
}
