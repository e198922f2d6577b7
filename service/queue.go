package service

import (
	"context"
	"errors"
	"time"
)

// ErrQueueFull 等待处理槽位超时
var ErrQueueFull = errors.New("processing queue is full")

// WorkQueue 限制同时进行的重计算数量，分割和提取共用
type WorkQueue struct {
	slots   chan struct{}
	timeout time.Duration
}

func NewWorkQueue(maxConcurrent int, timeout time.Duration) *WorkQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &WorkQueue{slots: make(chan struct{}, maxConcurrent), timeout: timeout}
}

// acquire 取得一个槽位，返回的函数用于归还
func (q *WorkQueue) acquire(ctx context.Context) (func(), error) {
	wait := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	select {
	case q.slots <- struct{}{}:
		return func() { <-q.slots }, nil
	case <-wait.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrQueueFull
	}
}
