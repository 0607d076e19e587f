package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化，重新加载并校验后回调。
// 监听所在目录而不是文件本身，编辑器的 rename+create 保存方式也能收到事件。
type Watcher struct {
	Path     string
	Debounce time.Duration // 冷却时间，合并连续写入

	OnUpdate func(AppConfig)
	OnError  func(error) // 重新加载失败时调用，旧配置继续生效

	mu    sync.Mutex
	timer *time.Timer
}

// Start blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Start(ctx context.Context) error {
	if w.Debounce <= 0 {
		w.Debounce = 500 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.fail(fmt.Errorf("watcher: %w", err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		w.fail(fmt.Errorf("reload %s: %w", w.Path, err))
		return
	}
	if w.OnUpdate != nil {
		w.OnUpdate(cfg)
	}
}

func (w *Watcher) fail(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
