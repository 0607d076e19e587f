package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger, name: name}
}

// Send 发送告警到日志
func (c *LogChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("level", string(alert.Level)),
		zap.String("market", alert.Market),
		zap.Time("ts", alert.Timestamp),
		zap.Any("fields", alert.Fields),
	}
	switch alert.Level {
	case LevelError, LevelCritical:
		c.logger.Error(alert.Message, fields...)
	default:
		c.logger.Warn(alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string { return c.name }

// SlackChannel 通过 incoming webhook 发送到 Slack
type SlackChannel struct {
	webhook string
	client  *fasthttp.Client
	timeout time.Duration
	name    string
}

// NewSlackChannel 创建 Slack 告警通道
func NewSlackChannel(name, webhook string, timeout time.Duration) *SlackChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SlackChannel{
		webhook: webhook,
		client:  &fasthttp.Client{Name: "clober-mm-alert"},
		timeout: timeout,
		name:    name,
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

// Send 发送告警到 Slack
func (c *SlackChannel) Send(alert Alert) error {
	body, err := json.Marshal(slackMessage{Text: alert.Text()})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.webhook)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("slack webhook status %d: %s", code, resp.Body())
	}
	return nil
}

// Name 返回通道名称
func (c *SlackChannel) Name() string { return c.name }
