// Package mq 把文档存储的变更镜像到 Kafka
// 镜像是尽力而为的，写入失败只记日志和指标，不影响存储本身
package mq

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/internal/infrastructure/worker"
	"ephemeral_chat/internal/store"
)

// MessageWriter kafka.Writer 的最小接口，便于测试替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ChangeEvent 写入 Kafka 的消息体
// Seq 在存储锁内分配，消费端可据此恢复全局顺序
type ChangeEvent struct {
	Seq   uint64          `json:"seq"`
	Key   string          `json:"key"`
	Op    store.Op        `json:"op"`
	Value json.RawMessage `json:"value,omitempty"`
	At    time.Time       `json:"at"`
}

// ChangeFeed 存储变更观察者
type ChangeFeed struct {
	writer  MessageWriter
	pool    *worker.Pool
	timeout time.Duration
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewKafkaWriter 按配置创建写入器
func NewKafkaWriter(conf *config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(conf.HostPort),
		Topic:                  conf.ChangeTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           conf.Timeout * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewChangeFeed 写入在任务池中异步执行
func NewChangeFeed(writer MessageWriter, pool *worker.Pool, timeout time.Duration) *ChangeFeed {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ChangeFeed{writer: writer, pool: pool, timeout: timeout}
}

// Observe 实现 store.ChangeObserver
func (f *ChangeFeed) Observe(c store.Change) {
	ev := ChangeEvent{
		Seq:   f.seq.Add(1),
		Key:   c.Key,
		Op:    c.Op,
		Value: json.RawMessage(c.Value),
		At:    c.At,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.IncChangeFeedError()
		zap.L().Error("encode change event failed", zap.String("key", c.Key), zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(c.Key), Value: body, Time: c.At}

	// Observe 在存储锁内执行，队列满时丢弃事件而不是同步写 Kafka
	ok := f.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.writer.WriteMessages(ctx, msg); err != nil {
			metrics.IncChangeFeedError()
			zap.L().Warn("publish change event failed",
				zap.String("key", ev.Key),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err),
			)
		}
	})
	if !ok {
		f.dropped.Add(1)
		metrics.IncChangeFeedError()
		zap.L().Warn("change feed queue full, event dropped",
			zap.String("key", ev.Key),
			zap.Uint64("seq", ev.Seq),
		)
	}
}

// Dropped 因队列满被丢弃的事件数
func (f *ChangeFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close 关闭写入器，调用方需先关闭任务池
func (f *ChangeFeed) Close() error {
	return f.writer.Close()
}
