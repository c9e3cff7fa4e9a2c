package mq

import (
	"context"
	"sync"
)

// InMemoryQueue delivers commands in-process. Tests and single-node
// deployments without Kafka use it.
type InMemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]MessageHandler
	messages map[string][][]byte
}

var _ MessageQueue = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]MessageHandler),
		messages: make(map[string][][]byte),
	}
}

// Publish records the message and delivers it to every handler
// synchronously, stopping at the first handler error.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, message []byte) error {
	q.mu.Lock()
	q.messages[topic] = append(q.messages[topic], message)
	handlers := append([]MessageHandler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, topic, message); err != nil {
			return err
		}
	}
	return nil
}

func (q *InMemoryQueue) Subscribe(topic string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *InMemoryQueue) Close() error {
	return nil
}

// Messages returns every message published to topic.
func (q *InMemoryQueue) Messages(topic string) [][]byte {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([][]byte(nil), q.messages[topic]...)
}
