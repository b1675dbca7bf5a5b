package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nodegate/backend/internal/infrastructure/log"
)

// DefaultDebounceDelay 同一文件连续事件的合并窗口
const DefaultDebounceDelay = 100 * time.Millisecond

// RotationWatcher 监听单个文件被删除或改名（日志轮转）
// 监听的是所在目录，文件重建后仍然有效
type RotationWatcher struct {
	path     string
	onRotate func()
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	timerMu sync.Mutex
	timer   *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRotationWatcher 创建轮转监听器，onRotate 在文件被移走后调用
func NewRotationWatcher(path string, onRotate func()) (*RotationWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	return &RotationWatcher{
		path:     abs,
		onRotate: onRotate,
		watcher:  w,
		logger:   log.NewModuleLogger("watcher", "rotation"),
		debounce: DefaultDebounceDelay,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start 开始监听
func (rw *RotationWatcher) Start() error {
	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(rw.path), err)
	}

	rw.wg.Add(1)
	go rw.watchLoop()

	rw.logger.Debug("Rotation watcher started", "path", rw.path)
	return nil
}

// Stop 停止监听，可重复调用
func (rw *RotationWatcher) Stop() {
	rw.stopOnce.Do(func() {
		close(rw.stopCh)
		_ = rw.watcher.Close()
		rw.wg.Wait()

		rw.timerMu.Lock()
		if rw.timer != nil {
			rw.timer.Stop()
		}
		rw.timerMu.Unlock()
	})
}

// watchLoop 事件处理循环
func (rw *RotationWatcher) watchLoop() {
	defer rw.wg.Done()

	for {
		select {
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != rw.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				rw.scheduleRotate()
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("Rotation watcher error", "error", err)
		}
	}
}

// scheduleRotate 防抖，合并同一次轮转产生的多个事件
func (rw *RotationWatcher) scheduleRotate() {
	rw.timerMu.Lock()
	defer rw.timerMu.Unlock()

	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(rw.debounce, func() {
		select {
		case <-rw.stopCh:
			return
		default:
		}
		rw.logger.Info("Log file rotated away, reopening", "path", rw.path)
		rw.onRotate()
	})
}
