// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"formfill-go/internal/config"
	"formfill-go/pkg/log"
	"formfill-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一个任务的最大处理次数。
const maxAttempts = 3

// retryBackoff 是两次重试之间的基础等待时间，按已失败次数线性增长。
var retryBackoff = 2 * time.Second

// attemptCounter 记录任务的失败次数。计数保存在 Redis 中，进程重启后重投的消息会接着计数。
type attemptCounter interface {
	Incr(ctx context.Context, documentID string) (int64, error)
	Reset(ctx context.Context, documentID string)
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

func attemptsKey(documentID string) string {
	return fmt.Sprintf("kafka:attempts:%s", documentID)
}

func (c redisAttemptCounter) Incr(ctx context.Context, documentID string) (int64, error) {
	n, err := c.rdb.Incr(ctx, attemptsKey(documentID)).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, attemptsKey(documentID), 24*time.Hour).Err()
	return n, nil
}

func (c redisAttemptCounter) Reset(ctx context.Context, documentID string) {
	_ = c.rdb.Del(ctx, attemptsKey(documentID)).Err()
}

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIngestTask) error
}

// Producer 负责把文档处理任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// Publish 发送一个文档处理任务到 Kafka。以 DocumentID 作为消息 key，同一文档的任务落在同一分区。
func (p *Producer) Publish(ctx context.Context, task tasks.DocumentIngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// Close 关闭底层的 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理文档任务，直到 ctx 被取消。
// 失败的任务在原地重试，失败次数记录在 Redis 中，达到上限后提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "formfill-go-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	counter := redisAttemptCounter{rdb: rdb}

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.DocumentIngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("开始处理文档任务: DocumentID=%s, FileName=%s", task.DocumentID, task.FileName)
		if !processWithRetry(ctx, processor, counter, task) {
			log.Info("Kafka 消费者已停止")
			return
		}
		commit(ctx, r, m)
	}
}

// processWithRetry 在当前消息上原地重试，直到成功或达到 maxAttempts，之后才允许提交 offset。
// 未提交的消息在同一个 reader 会话中不会被重投，所以重试不能依赖 Kafka。
// 返回 false 表示 ctx 已取消，此时不提交 offset。
func processWithRetry(ctx context.Context, processor TaskProcessor, counter attemptCounter, task tasks.DocumentIngestTask) bool {
	local := int64(0)
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("文档任务处理成功: DocumentID=%s", task.DocumentID)
			counter.Reset(ctx, task.DocumentID)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Errorf("处理文档任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)

		local++
		attempts, incErr := counter.Incr(ctx, task.DocumentID)
		if incErr != nil {
			log.Warnf("记录任务失败次数失败，使用本地计数: DocumentID=%s, Error: %v", task.DocumentID, incErr)
		}
		if attempts < local {
			attempts = local
		}
		if attempts >= maxAttempts {
			log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", maxAttempts, task.DocumentID)
			counter.Reset(ctx, task.DocumentID)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempts) * retryBackoff):
		}
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
