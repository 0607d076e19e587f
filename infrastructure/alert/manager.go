package alert

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Market    string // 为空表示进程级告警
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Key 限流 key：同一市场同一类消息在限流窗口内只发一次。
func (a Alert) Key() string {
	return fmt.Sprintf("%s:%s:%s", a.Level, a.Market, a.Message)
}

// Text 渲染为单行文本，字段按 key 排序。
func (a Alert) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", a.Level)
	if a.Market != "" {
		fmt.Fprintf(&b, " %s", a.Market)
	}
	fmt.Fprintf(&b, " %s", a.Message)
	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, a.Fields[k])
		}
	}
	return b.String()
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, exists := t.lastSent[key]
	if !exists || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Reset 重置某个 key，例如市场恢复后允许下一次异常立即告警
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Manager 告警管理器
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send 发送告警；被限流时静默返回 nil。所有通道都失败时返回最后一个错误。
func (m *Manager) Send(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if !m.throttle.Allow(alert.Key()) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		ok++
	}
	if ok == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Warn 发送 WARNING 级别告警
func (m *Manager) Warn(market, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Market: market, Message: message, Fields: fields})
}

// Error 发送 ERROR 级别告警
func (m *Manager) Error(market, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelError, Market: market, Message: message, Fields: fields})
}

// Critical 发送 CRITICAL 级别告警
func (m *Manager) Critical(market, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Market: market, Message: message, Fields: fields})
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 获取所有通道名
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置某条告警的限流记录
func (m *Manager) ResetThrottle(a Alert) {
	m.throttle.Reset(a.Key())
}
