package oracle

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const defaultBinanceWS = "wss://stream.binance.com:9443"

var two = decimal.NewFromInt(2)

// BinanceStream 订阅 bookTicker combined stream，以买一卖一中间价作为参考价。
// Run 在后台维持连接；Update 只检查缓存是否新鲜。
type BinanceStream struct {
	Endpoint  string
	Dialer    *websocket.Dialer
	MaxAge    time.Duration // 超过该时长未收到推送视为过期
	Reconnect time.Duration

	feeds   map[string]Feed // symbol(upper) -> feed
	book    *priceBook
	onError func(error)
}

func NewBinanceStream(endpoint string, feeds []Feed, maxAge time.Duration) *BinanceStream {
	if endpoint == "" {
		endpoint = defaultBinanceWS
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	bySymbol := make(map[string]Feed, len(feeds))
	for _, f := range feeds {
		bySymbol[strings.ToUpper(f.Symbol)] = f
	}
	return &BinanceStream{
		Endpoint:  endpoint,
		Dialer:    websocket.DefaultDialer,
		MaxAge:    maxAge,
		Reconnect: time.Second,
		feeds:     bySymbol,
		book:      newPriceBook(),
	}
}

// OnError 注册连接错误回调（用于日志）。
func (s *BinanceStream) OnError(fn func(error)) { s.onError = fn }

// Run 阻塞直到 ctx 结束，断线后按 Reconnect 间隔重连。
func (s *BinanceStream) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && s.onError != nil {
			s.onError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Reconnect):
		}
	}
}

func (s *BinanceStream) streamURL() (string, error) {
	if len(s.feeds) == 0 {
		return "", fmt.Errorf("no streams subscribed")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", err
	}
	streams := make([]string, 0, len(s.feeds))
	for sym := range s.feeds {
		streams = append(streams, strings.ToLower(sym)+"@bookTicker")
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *BinanceStream) runOnce(ctx context.Context) error {
	u, err := s.streamURL()
	if err != nil {
		return err
	}
	conn, _, err := s.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.MaxAge))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(message); err != nil && s.onError != nil {
			s.onError(err)
		}
	}
}

// handle 解析 {"stream":"...","data":{"s":"ETHUSDC","b":"..","a":".."}}
func (s *BinanceStream) handle(message []byte) error {
	data := gjson.GetBytes(message, "data")
	if !data.Exists() {
		data = gjson.ParseBytes(message)
	}
	sym := data.Get("s").String()
	f, ok := s.feeds[sym]
	if !ok {
		return nil
	}
	bid, err := parsePrice(data.Get("b").String(), false)
	if err != nil {
		return fmt.Errorf("bookTicker %s bid: %w", sym, err)
	}
	ask, err := parsePrice(data.Get("a").String(), false)
	if err != nil {
		return fmt.Errorf("bookTicker %s ask: %w", sym, err)
	}
	mid := bid.Add(ask).Div(two)
	if f.Invert {
		mid, err = parsePrice(mid.String(), true)
		if err != nil {
			return err
		}
	}
	return s.book.set(f.Market, mid, time.Now())
}

// Update 检查所有市场的价格都在 MaxAge 内。
func (s *BinanceStream) Update(ctx context.Context) error {
	for _, f := range s.feeds {
		if err := s.UpdateMarket(ctx, f.Market); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMarket 只检查 marketID 的最近一次推送。
func (s *BinanceStream) UpdateMarket(_ context.Context, marketID string) error {
	age, ok := s.book.age(marketID, time.Now())
	if !ok {
		return fmt.Errorf("%w: %s no tick yet", ErrStale, marketID)
	}
	if age > s.MaxAge {
		return fmt.Errorf("%w: %s last tick %s ago", ErrStale, marketID, age.Truncate(time.Millisecond))
	}
	return nil
}

func (s *BinanceStream) Price(marketID string) (decimal.Decimal, error) { return s.book.get(marketID) }
