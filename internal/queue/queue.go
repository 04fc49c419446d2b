package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeliveryEventsTopic carries model.DeliveryEvent JSON from the webhooks to
// the lifecycle subscriber.
const DeliveryEventsTopic = "delivery_events"

// DefaultMaxRetries bounds redelivery of a failing message.
const DefaultMaxRetries = 3

// Handler processes one message body. A non-nil error asks for a retry.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue fans messages out to in-process subscribers with bounded
// retry and linear backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	log      *zap.Logger

	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: DefaultMaxRetries,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.process(context.WithoutCancel(ctx), handler, job{topic: topic, body: body})
	}
	return nil
}

// process handles retries and errors
func (q *InMemoryQueue) process(ctx context.Context, handler Handler, j job) {
	defer q.wg.Done()
	for {
		err := handler(ctx, j.body)
		if err == nil {
			return
		}

		j.retryCount++
		q.log.Warn("Job failed",
			zap.String("topic", j.topic),
			zap.Int("attempt", j.retryCount),
			zap.Int("max_retries", q.MaxRetries),
			zap.Error(err))

		if j.retryCount > q.MaxRetries {
			q.log.Error("Job permanently failed", zap.String("topic", j.topic), zap.Int("attempts", j.retryCount))
			return
		}
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs, retries included.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
