package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// Channel is the subset of *amqp.Channel used by AMQPQueue.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPQueue publishes to durable RabbitMQ queues named after the topic and
// consumes them with manual acks. A failing message is republished with an
// incremented x-retry-count header until MaxRetries, then dropped.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   Channel
	log  *zap.Logger

	mu       sync.Mutex
	declared map[string]bool
	wg       sync.WaitGroup

	MaxRetries int
}

// DialAMQP connects to the broker and opens a channel.
func DialAMQP(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q := NewAMQPQueue(ch, log)
	q.conn = conn
	return q, nil
}

func NewAMQPQueue(ch Channel, log *zap.Logger) *AMQPQueue {
	return &AMQPQueue{
		ch:         ch,
		log:        log,
		declared:   make(map[string]bool),
		MaxRetries: DefaultMaxRetries,
	}
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int32) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	err := q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.handle(topic, d, handler)
		}
	}()
	return nil
}

// handle runs the handler and settles the delivery.
func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	err := handler(context.Background(), d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries < int32(q.MaxRetries) {
		if perr := q.publish(topic, d.Body, retries+1); perr != nil {
			// broker keeps the original when the retry cannot be published
			q.log.Error("Failed to republish", zap.String("topic", topic), zap.Error(perr))
			d.Nack(false, true)
			return
		}
		q.log.Warn("Message requeued", zap.String("topic", topic), zap.Int32("retry", retries+1), zap.Error(err))
		d.Ack(false)
		return
	}

	q.log.Error("Message dropped after retries", zap.String("topic", topic), zap.Int32("retries", retries), zap.Error(err))
	d.Ack(false)
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

// Close closes the channel, which ends every consumer loop, and waits for them.
func (q *AMQPQueue) Close() error {
	err := q.ch.Close()
	q.wg.Wait()
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ Queue = (*AMQPQueue)(nil)
