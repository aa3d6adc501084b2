// Package worker 提供固定大小的异步任务池
package worker

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Pool 纯闭包任务池
// Submit 在通道满或已关闭时降级为同步执行；TrySubmit 则直接拒绝
type Pool struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool 启动 workers 个后台协程，缓冲区大小 buffer
func NewPool(name string, workers, buffer int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	p := &Pool{name: name, tasks: make(chan func(), buffer)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.startWorker()
	}
	zap.L().Info("worker pool started", zap.String("pool", name), zap.Int("workers", workers), zap.Int("buffer", buffer))
	return p
}

// startWorker 单个 Worker 消费循环
func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("worker task panic",
				zap.String("pool", p.name),
				zap.Any("recover", rec),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// Submit 提交异步任务
func (p *Pool) Submit(action func()) {
	if action == nil {
		return
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.run(action)
		return
	}
	select {
	case p.tasks <- action:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		// 降级：同步执行
		zap.L().Warn("worker pool channel full, executing synchronously", zap.String("pool", p.name))
		p.run(action)
	}
}

// TrySubmit 非阻塞提交，通道满或已关闭时返回 false 且不执行任务
// 持锁的调用方（如存储观察者）使用它，不能走 Submit 的同步降级
func (p *Pool) TrySubmit(action func()) bool {
	if action == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- action:
		return true
	default:
		return false
	}
}

// Close 停止接收任务并等待已入队任务执行完
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
