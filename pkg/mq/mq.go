// Package mq carries vector store commands over a message queue.
package mq

import "context"

// MessageHandler applies one message read from topic.
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// MessageQueue publishes commands and delivers them to subscribers.
type MessageQueue interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Subscribe(topic string, handler MessageHandler) error
	Close() error
}
