package events

import (
	"context"
	"sync"
)

// Publisher writes a serialized message to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// MessageHandler consumes a message delivered by the in-process broker.
type MessageHandler func(ctx context.Context, topic string, body []byte) error

// InMemoryPublisher is a synchronous in-process broker. It backs local runs without Redis and tests.
type InMemoryPublisher struct {
	mu        sync.RWMutex
	listeners map[string][]MessageHandler
}

// NewInMemoryPublisher creates a publisher instance.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		listeners: make(map[string][]MessageHandler),
	}
}

// Publish synchronously invokes handlers subscribed to the topic.
// Handler errors are ignored so one subscriber cannot block the others.
func (p *InMemoryPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	p.mu.RLock()
	handlers := append([]MessageHandler{}, p.listeners[topic]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(ctx, topic, body)
	}
	return nil
}

// Subscribe registers a handler for the given topic.
func (p *InMemoryPublisher) Subscribe(topic string, handler MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[topic] = append(p.listeners[topic], handler)
}
