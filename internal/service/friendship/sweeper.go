package friendship

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LapseSweeper 定时清理过期好友关系
type LapseSweeper struct {
	svc      *Service
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLapseSweeper interval <= 0 时 Start 不会启动任何协程
func NewLapseSweeper(svc *Service, interval time.Duration) *LapseSweeper {
	return &LapseSweeper{svc: svc, interval: interval, done: make(chan struct{})}
}

// Start 启动后立即执行一次，之后按间隔执行
func (j *LapseSweeper) Start() {
	if j.interval <= 0 {
		zap.L().Info("lapse sweeper disabled")
		return
	}
	ticker := time.NewTicker(j.interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()
		zap.L().Info("lapse sweeper started", zap.Duration("interval", j.interval))

		j.sweep()
		for {
			select {
			case <-ticker.C:
				j.sweep()
			case <-j.done:
				zap.L().Info("lapse sweeper stopped")
				return
			}
		}
	}()
}

// Stop 可重复调用
func (j *LapseSweeper) Stop() {
	j.stopOnce.Do(func() { close(j.done) })
	j.wg.Wait()
}

func (j *LapseSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()
	n, err := j.svc.SweepLapsed(ctx)
	if err != nil {
		zap.L().Error("lapse sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("lapsed friendships removed", zap.Int("entries", n))
	}
}
