package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"github.com/clober-dex/clober-market-maker-sub000/order"
)

var (
	// ErrRejected 批次被 relayer 拒绝或链上回滚。
	ErrRejected = errors.New("gateway: batch rejected")
	// ErrUnknownMarket 未配置 venue id 的市场。
	ErrUnknownMarket = errors.New("gateway: unknown market")
)

// RelayConfig relayer 客户端配置。
type RelayConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Account   string
	Timeout   time.Duration
	// Markets 市场名 -> venue 上的市场 id（合约地址）
	Markets map[string]string
}

// RelayClient 通过 relayer 读取挂单/盘口并提交指令批次；提交在返回前等待链上确认。
type RelayClient struct {
	cfg     RelayConfig
	client  *fasthttp.Client
	limiter RateLimiter
	now     func() time.Time
}

func NewRelayClient(cfg RelayConfig, limiter RateLimiter) *RelayClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = noLimit{}
	}
	return &RelayClient{
		cfg:     cfg,
		client:  &fasthttp.Client{Name: "clober-mm"},
		limiter: limiter,
		now:     time.Now,
	}
}

// OpenOrders GET /v1/markets/{id}/open-orders?account=
func (c *RelayClient) OpenOrders(ctx context.Context, market string) ([]order.LiveOrder, error) {
	body, err := c.get(ctx, market, "open-orders", map[string]string{"account": c.cfg.Account})
	if err != nil {
		return nil, err
	}
	rows := gjson.GetBytes(body, "orders")
	if !rows.IsArray() {
		return nil, fmt.Errorf("open-orders %s: unexpected response", market)
	}
	out := make([]order.LiveOrder, 0, len(rows.Array()))
	for _, r := range rows.Array() {
		o, err := parseLiveOrder(r)
		if err != nil {
			return nil, fmt.Errorf("open-orders %s: %w", market, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// BookTop GET /v1/markets/{id}/depth，取买一卖一价。
func (c *RelayClient) BookTop(ctx context.Context, market string) (decimal.Decimal, decimal.Decimal, error) {
	body, err := c.get(ctx, market, "depth", nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	bid, err := optionalDecimal(gjson.GetBytes(body, "bids.0.price"))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("depth %s bid: %w", market, err)
	}
	ask, err := optionalDecimal(gjson.GetBytes(body, "asks.0.price"))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("depth %s ask: %w", market, err)
	}
	return bid, ask, nil
}

type makePayload struct {
	Side string          `json:"side"`
	Tick int64           `json:"tick"`
	Size decimal.Decimal `json:"size"`
}

type batchPayload struct {
	Account string        `json:"account"`
	Claims  []string      `json:"claims"`
	Cancels []string      `json:"cancels"`
	Makes   []makePayload `json:"makes"`
}

// Submit POST /v1/markets/{id}/batches，按 claims -> cancels -> makes 在一笔交易内执行。
func (c *RelayClient) Submit(ctx context.Context, market string, b order.Batch) (order.Receipt, error) {
	id, err := c.marketID(market)
	if err != nil {
		return order.Receipt{}, err
	}
	payload := batchPayload{
		Account: c.cfg.Account,
		Claims:  nonNil(b.Claims),
		Cancels: nonNil(b.Cancels),
		Makes:   make([]makePayload, 0, len(b.Makes)),
	}
	for _, m := range b.Makes {
		payload.Makes = append(payload.Makes, makePayload{Side: string(m.Side), Tick: m.Tick, Size: m.Size})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return order.Receipt{}, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/v1/markets/" + url.PathEscape(id) + "/batches")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(raw)
	c.authorize(req, raw)

	if err := c.do(ctx, req, resp); err != nil {
		return order.Receipt{}, fmt.Errorf("submit %s: %w", market, err)
	}
	res := gjson.ParseBytes(resp.Body())
	rcpt := order.Receipt{TxHash: res.Get("txHash").String(), Status: res.Get("status").String()}
	if resp.StatusCode() != fasthttp.StatusOK {
		return rcpt, fmt.Errorf("%w: %s status %d: %s", ErrRejected, market, resp.StatusCode(), res.Get("error").String())
	}
	switch rcpt.Status {
	case "confirmed", "success":
		return rcpt, nil
	default:
		return rcpt, fmt.Errorf("%w: %s tx %s status %q", ErrRejected, market, rcpt.TxHash, rcpt.Status)
	}
}

func (c *RelayClient) get(ctx context.Context, market, path string, query map[string]string) ([]byte, error) {
	id, err := c.marketID(market)
	if err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/v1/markets/" + url.PathEscape(id) + "/" + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	args := req.URI().QueryArgs()
	for k, v := range query {
		args.Set(k, v)
	}
	c.authorize(req, nil)

	if err := c.do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", path, market, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d: %s", path, market, resp.StatusCode(), gjson.GetBytes(resp.Body(), "error").String())
	}
	// resp 会被回收，复制一份
	return append([]byte(nil), resp.Body()...), nil
}

func (c *RelayClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	return c.client.DoTimeout(req, resp, timeout)
}

func (c *RelayClient) authorize(req *fasthttp.Request, body []byte) {
	if c.cfg.APIKey == "" {
		return
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if c.cfg.APISecret != "" {
		ts := c.now().UnixMilli()
		req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
		req.Header.Set("X-Signature", SignPayload(c.cfg.APISecret, ts, body))
	}
}

func (c *RelayClient) marketID(market string) (string, error) {
	id, ok := c.cfg.Markets[market]
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	return id, nil
}

func parseLiveOrder(r gjson.Result) (order.LiveOrder, error) {
	side, err := order.ParseSide(r.Get("side").String())
	if err != nil {
		return order.LiveOrder{}, err
	}
	o := order.LiveOrder{
		ID:         r.Get("id").String(),
		Side:       side,
		Tick:       r.Get("tick").Int(),
		OrderIndex: r.Get("orderIndex").Uint(),
	}
	if o.ID == "" {
		return order.LiveOrder{}, errors.New("order without id")
	}
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"price", &o.Price},
		{"amount", &o.Amount},
		{"filled", &o.Filled},
		{"cancelable", &o.Cancelable},
		{"claimable", &o.Claimable},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(r.Get(f.key).String())
		if err != nil {
			return order.LiveOrder{}, fmt.Errorf("order %s field %s: %w", o.ID, f.key, err)
		}
		*f.dst = v
	}
	return o, nil
}

func optionalDecimal(r gjson.Result) (decimal.Decimal, error) {
	if !r.Exists() || r.String() == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.String())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
