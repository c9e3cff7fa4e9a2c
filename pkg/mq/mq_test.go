package mq

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()

	var got []string
	require.NoError(t, q.Subscribe("commands", func(ctx context.Context, topic string, message []byte) error {
		got = append(got, topic+":"+string(message))
		return nil
	}))

	require.NoError(t, q.Publish(ctx, "commands", []byte("a")))
	require.NoError(t, q.Publish(ctx, "other", []byte("b")))

	assert.Equal(t, []string{"commands:a"}, got)
	assert.Len(t, q.Messages("commands"), 1)
	assert.Len(t, q.Messages("other"), 1)

	boom := errors.New("boom")
	require.NoError(t, q.Subscribe("commands", func(context.Context, string, []byte) error { return boom }))
	assert.ErrorIs(t, q.Publish(ctx, "commands", []byte("c")), boom)
}

func TestKafkaConfig_Validate(t *testing.T) {
	var disabled KafkaConfig
	require.NoError(t, disabled.Validate())

	cfg := KafkaConfig{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "vectorstore-commands", cfg.Topic)

	cfg.Consumers = []ConsumerConfig{{Name: "ingest"}}
	assert.ErrorContains(t, cfg.Validate(), "consumers[0].group")
}

func TestKafkaProducer_Publish(t *testing.T) {
	ctx := context.Background()
	client := mocks.NewSyncProducer(t, nil)
	client.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"op":"delete"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	client.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaProducerWithClient(client)
	require.NoError(t, p.Publish(ctx, "commands", []byte(`{"op":"delete"}`)))
	assert.ErrorIs(t, p.Publish(ctx, "commands", []byte("x")), sarama.ErrOutOfBrokers)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Publish(canceled, "commands", []byte("x")), context.Canceled)

	require.NoError(t, p.Close())
}

func TestKafkaProducer_Disabled(t *testing.T) {
	p, err := NewKafkaProducer(KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Error(t, p.Publish(context.Background(), "t", nil))
	assert.NoError(t, p.Close())
}

type stubSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *stubSession) Context() context.Context { return s.ctx }

func (s *stubSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type stubClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *stubClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestCommandSession_ConsumeClaim(t *testing.T) {
	var applied []string
	handler := func(_ context.Context, topic string, message []byte) error {
		if string(message) == "bad" {
			return errors.New("rejected")
		}
		applied = append(applied, topic+":"+string(message))
		return nil
	}

	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "commands", Offset: 1, Value: []byte("a")}
	claim.messages <- &sarama.ConsumerMessage{Topic: "commands", Offset: 2, Value: []byte("bad")}
	claim.messages <- &sarama.ConsumerMessage{Topic: "commands", Offset: 3, Value: []byte("b")}
	close(claim.messages)

	ready := make(chan struct{})
	session := &stubSession{ctx: context.Background()}
	h := &commandSession{ready: ready, handler: handler, logger: slog.Default()}

	require.NoError(t, h.Setup(session))
	require.NoError(t, h.Setup(session))
	<-ready

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Equal(t, []string{"commands:a", "commands:b"}, applied)
	assert.Equal(t, []int64{1, 2, 3}, session.marked)
}

func TestKafkaConfig_Defaults(t *testing.T) {
	cfg := KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.Equal(t, "vectorstore", cfg.ClientID)
	assert.Equal(t, "ingest", saramaConfig("ingest").ClientID)
}
