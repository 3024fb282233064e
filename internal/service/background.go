package service

import (
	"context"
	"sync"
	"time"

	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"

	"go.uber.org/zap"
)

// Background 运行与请求解耦的后台任务（回填缓存、徽章计算）
// 任务失败只记录日志，不影响已经返回的响应
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewBackground 创建后台任务执行器
func NewBackground(timeout time.Duration) *Background {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Background{timeout: timeout}
}

// Go 启动后台任务；parent 取消不会影响任务
// Shutdown 之后提交的任务直接丢弃
func (b *Background) Go(parent context.Context, task string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		logger.Warn("后台任务已停止接收，丢弃任务", zap.String("task", task))
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.DetachedTaskFailures.WithLabelValues(task).Inc()
			logger.Error("后台任务失败", zap.String("task", task), zap.Error(err))
		}
	}()
}

// Wait 等待当前所有后台任务结束，之后仍可继续提交
func (b *Background) Wait() {
	b.wg.Wait()
}

// Shutdown 停止接收新任务并等待已提交的任务结束
func (b *Background) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
