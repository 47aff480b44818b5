// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// Producer 把单元处理任务写入 Kafka，消息 key 为单元 id，同一单元的任务落在同一分区。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{w: w}
}

// Publish 发送一个单元处理任务到 Kafka。
func (p *Producer) Publish(ctx context.Context, task tasks.UnitProcessingTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(task.UnitID), 10)),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// AttemptCounter 记录一个任务的失败次数，跨进程重启保留。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Clear(ctx context.Context, key string) error
}

type redisCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCounter 使用 Redis INCR 计数，计数 24 小时后过期。
func NewRedisCounter(rdb *redis.Client) AttemptCounter {
	return &redisCounter{rdb: rdb, ttl: 24 * time.Hour}
}

func (c *redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
	return n, nil
}

func (c *redisCounter) Clear(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// 处理结果对应的动作。
type action int

const (
	actionCommit action = iota
	actionRetry
)

// decide 决定一条消息处理后是否提交 offset。
// 成功或带分类的错误（单元状态已记录 / 认领冲突）直接提交；
// 其它错误（通常是数据库不可用）重试，达到 maxAttempts 后放弃并提交。
func decide(err error, attempts int64, maxAttempts int) action {
	if err == nil || errs.KindOf(err) != "" {
		return actionCommit
	}
	if attempts >= int64(maxAttempts) {
		return actionCommit
	}
	return actionRetry
}

func attemptsKey(m kafka.Message) string {
	return fmt.Sprintf("kafka:attempts:%d:%d", m.Partition, m.Offset)
}

// Consumer 消费单元处理任务。
type Consumer struct {
	r           *kafka.Reader
	processor   tasks.Processor
	counter     AttemptCounter
	maxAttempts int
	retryDelay  time.Duration
}

func NewConsumer(cfg config.KafkaConfig, processor tasks.Processor, counter AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{r: r, processor: processor, counter: counter, maxAttempts: maxAttempts, retryDelay: 5 * time.Second}
}

// Run 阻塞消费，直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.r.Config().Topic)
	defer func() {
		if err := c.r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		c.handle(ctx, m)
		if err := c.r.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，需要重试时在本地重试，返回时消息可以提交。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.UnitProcessingTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return
	}

	key := attemptsKey(m)
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			c.clearAttempts(ctx, key)
			log.Infof("单元任务处理完成: UnitID=%d", task.UnitID)
			return
		}
		attempts, incErr := c.counter.Incr(ctx, key)
		if incErr != nil {
			log.Warnf("记录失败次数失败: %v", incErr)
			attempts = int64(c.maxAttempts)
		}
		if decide(err, attempts, c.maxAttempts) == actionCommit {
			log.Warnf("单元任务结束: UnitID=%d, attempts=%d, Error: %v", task.UnitID, attempts, err)
			c.clearAttempts(ctx, key)
			return
		}
		log.Warnf("单元任务失败, %s 后重试: UnitID=%d, attempts=%d, Error: %v", c.retryDelay, task.UnitID, attempts, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) clearAttempts(ctx context.Context, key string) {
	if err := c.counter.Clear(ctx, key); err != nil {
		log.Warnf("清除失败次数失败: key=%s, err=%v", key, err)
	}
}
