package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/vectorstore/internal/domain"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/mq"
)

// Applier executes commands read from the queue.
type Applier interface {
	Apply(ctx context.Context, cmd domain.Command) error
}

// Consumer 异步写入消费者
type Consumer struct {
	logger    *slog.Logger
	applier   Applier
	consumers []*mq.KafkaConsumer
}

// Config 消费者配置
type Config struct {
	Kafka mq.KafkaConfig
}

// NewConsumer creates a Kafka consumer group per configured consumer. With
// Kafka disabled the Consumer is inert.
func NewConsumer(applier Applier, cfg Config) (*Consumer, error) {
	c := &Consumer{
		logger:  log.Logger("consumer"),
		applier: applier,
	}

	if !cfg.Kafka.Enabled {
		c.logger.Info("kafka disabled, consumer not started")
		return c, nil
	}

	for _, cc := range cfg.Kafka.Consumers {
		kc, err := mq.NewKafkaConsumer(cfg.Kafka.Brokers, cc, c.Handle)
		if err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "consumer %s", cc.Group)
		}
		c.consumers = append(c.consumers, kc)
	}

	return c, nil
}

// Subscribe attaches the handler to an in-process queue.
func (c *Consumer) Subscribe(q mq.MessageQueue, topic string) error {
	return q.Subscribe(topic, c.Handle)
}

// Handle decodes one command message and applies it.
func (c *Consumer) Handle(ctx context.Context, topic string, message []byte) error {
	var cmd domain.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.logger.Warn("dropping malformed command", "topic", topic, "error", err)
		return errors.Wrap(err, "decode command")
	}

	if err := c.applier.Apply(ctx, cmd); err != nil {
		c.logger.Error("apply command failed", "topic", topic, "op", cmd.Op, "index", cmd.Index, "error", err)
		return err
	}

	c.logger.Debug("command applied", "topic", topic, "op", cmd.Op, "index", cmd.Index)
	return nil
}

// Start 启动所有消费者
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.consumers) == 0 {
		c.logger.Info("no consumers configured, skipping start")
		return nil
	}

	c.logger.Info("starting consumers", "count", len(c.consumers))

	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range c.consumers {
		g.Go(func() error {
			return consumer.Start(ctx)
		})
	}

	return g.Wait()
}

// Stop 停止所有消费者
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumers")

	for _, consumer := range c.consumers {
		if err := consumer.Stop(); err != nil {
			c.logger.Error("failed to stop consumer", "error", err)
		}
	}

	return nil
}
