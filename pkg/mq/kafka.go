package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

const (
	// DefaultTopic carries async vector store commands.
	DefaultTopic    = "vectorstore-commands"
	defaultClientID = "vectorstore"

	consumeRetryDelay = time.Second
)

var commandProducer *KafkaProducer

// Init builds the process-wide command producer. It is nil while Kafka is
// disabled.
func Init(cfg KafkaConfig) error {
	producer, err := NewKafkaProducer(cfg)
	if err != nil {
		return err
	}
	commandProducer = producer
	return nil
}

// Producer returns the producer built by Init, or nil.
func Producer() *KafkaProducer {
	return commandProducer
}

// Close shuts the producer built by Init down.
func Close() error {
	return commandProducer.Close()
}

// KafkaConfig selects the brokers that carry vector store commands.
type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	ClientID string   `toml:"client_id"`
	// Topic receives commands published by async writers.
	Topic     string           `toml:"topic"`
	Consumers []ConsumerConfig `toml:"consumers"`
}

// ConsumerConfig is one consumer group applying commands.
type ConsumerConfig struct {
	Name   string   `toml:"name"`
	Group  string   `toml:"group"`
	Topics []string `toml:"topics"`
}

func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers is required when kafka is enabled")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}
	for i, consumer := range c.Consumers {
		if consumer.Group == "" {
			return fmt.Errorf("consumers[%d].group is required", i)
		}
		if len(consumer.Topics) == 0 {
			return fmt.Errorf("consumers[%d].topics is required", i)
		}
	}
	return nil
}

func saramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID == "" {
		clientID = defaultClientID
	}
	cfg.ClientID = clientID
	return cfg
}

// KafkaConsumer applies commands from a consumer group. A command that fails
// is logged and committed so one bad write cannot stall the partition.
type KafkaConsumer struct {
	logger  *slog.Logger
	name    string
	topics  []string
	client  sarama.ConsumerGroup
	handler MessageHandler
	ready   chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKafkaConsumer joins config.Group on brokers. Fresh groups start at the
// newest offset.
func NewKafkaConsumer(brokers []string, config ConsumerConfig, handler MessageHandler) (*KafkaConsumer, error) {
	cfg := saramaConfig(config.Name)
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewConsumerGroup(brokers, config.Group, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "join consumer group %s", config.Group)
	}
	return newKafkaConsumer(client, config, handler), nil
}

func newKafkaConsumer(client sarama.ConsumerGroup, config ConsumerConfig, handler MessageHandler) *KafkaConsumer {
	name := config.Name
	if name == "" {
		name = config.Group
	}
	return &KafkaConsumer{
		logger:  slog.Default().With("module", "command-consumer", "name", name),
		name:    name,
		topics:  config.Topics,
		client:  client,
		handler: handler,
		ready:   make(chan struct{}),
	}
}

// Start consumes in the background. It returns once the first session is
// assigned partitions or ctx ends.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)
	ready := c.ready

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, ready)
	}()

	select {
	case <-ready:
		c.logger.Info("applying commands", "topics", c.topics)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consume rejoins the group after every rebalance until ctx ends.
func (c *KafkaConsumer) consume(ctx context.Context, ready chan struct{}) {
	for {
		session := &commandSession{ready: ready, handler: c.handler, logger: c.logger}
		if err := c.client.Consume(ctx, c.topics, session); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Error("consume commands", "error", err)
			select {
			case <-time.After(consumeRetryDelay):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return
		}
		ready = make(chan struct{})
	}
}

// Stop leaves the group and waits for the in-flight command.
func (c *KafkaConsumer) Stop() error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// commandSession implements sarama.ConsumerGroupHandler for one generation.
type commandSession struct {
	ready   chan struct{}
	once    sync.Once
	handler MessageHandler
	logger  *slog.Logger
}

func (h *commandSession) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	return nil
}

func (h *commandSession) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *commandSession) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.apply(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *commandSession) apply(ctx context.Context, msg *sarama.ConsumerMessage) {
	start := time.Now()
	if err := h.handler(ctx, msg.Topic, msg.Value); err != nil {
		h.logger.Error("command failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	h.logger.Debug("command applied",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"elapsed", time.Since(start),
	)
}

// KafkaProducer publishes commands synchronously, waiting for every in-sync
// replica.
type KafkaProducer struct {
	logger *slog.Logger
	client sarama.SyncProducer
}

var _ MessageQueue = (*KafkaProducer)(nil)

// NewKafkaProducer returns nil, nil when Kafka is disabled.
func NewKafkaProducer(config KafkaConfig) (*KafkaProducer, error) {
	if !config.Enabled {
		return nil, nil
	}

	cfg := saramaConfig(config.ClientID)
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	client, err := sarama.NewSyncProducer(config.Brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create command producer")
	}
	return NewKafkaProducerWithClient(client), nil
}

// NewKafkaProducerWithClient wraps an existing sarama producer.
func NewKafkaProducerWithClient(client sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{
		logger: slog.Default().With("module", "command-producer"),
		client: client,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, message []byte) error {
	if p == nil {
		return errors.New("command producer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := p.client.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	})
	if err != nil {
		return errors.Wrapf(err, "publish command to %s", topic)
	}

	p.logger.Debug("command published", "topic", topic, "partition", partition, "offset", offset, "bytes", len(message))
	return nil
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Subscribe is unsupported; commands are read through KafkaConsumer.
func (p *KafkaProducer) Subscribe(string, MessageHandler) error {
	return errors.New("command producer cannot subscribe, use KafkaConsumer")
}
