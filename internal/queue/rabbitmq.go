package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "lesson-engine.dlx"
	startupTimeout   = 15 * time.Second
	dialTimeout      = 3 * time.Second
	heartbeat        = 10 * time.Second
	minStartupRedial = time.Second
	maxStartupRedial = 30 * time.Second
)

// RabbitMQ owns one connection and one publishing channel. After the broker
// drops them they are reopened on the next publish with a single bounded
// dial; only NewRabbitMQ waits for the broker to come up. The conversion
// topology is declared each time a channel is opened.
type RabbitMQ struct {
	url string

	// conn is read without mu so Ping never waits behind a publish.
	conn atomic.Pointer[amqp.Connection]

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQ(ctx context.Context, url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	conn, err := r.dialUntilReady(ctx)
	if err != nil {
		return nil, err
	}
	r.conn.Store(conn)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.openChannelLocked(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	conn := r.conn.Swap(nil)
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Ping reports whether the broker connection is open. It does not dial.
func (r *RabbitMQ) Ping() error {
	if conn := r.conn.Load(); conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// publish sends on the shared channel. A channel that fails mid-publish is
// dropped and the publish is tried once more on a fresh one.
func (r *RabbitMQ) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := r.openChannelLocked(ctx)
		if err != nil {
			return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
		}

		lastErr = ch.PublishWithContext(ctx, "", queue, false, false, msg)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !isChannelGone(lastErr) {
			break
		}
		_ = ch.Close()
		r.ch = nil
	}
	return fmt.Errorf("failed to publish message to queue %q: %w", queue, lastErr)
}

func (r *RabbitMQ) openChannelLocked(ctx context.Context) (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	conn := r.conn.Load()
	if conn == nil || conn.IsClosed() {
		var err error
		if conn, err = r.dial(ctx); err != nil {
			return nil, err
		}
		if old := r.conn.Swap(conn); old != nil && !old.IsClosed() {
			_ = old.Close()
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	r.ch = ch
	return ch, nil
}

// dial makes one connection attempt, bounded by dialTimeout and ctx.
func (r *RabbitMQ) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
		}
		timeout = min(timeout, remaining)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	conn, err := amqp.DialConfig(r.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	return conn, nil
}

// dialUntilReady retries dial with backoff until ctx ends. Startup only.
func (r *RabbitMQ) dialUntilReady(ctx context.Context) (*amqp.Connection, error) {
	delay := minStartupRedial
	for {
		conn, err := r.dial(ctx)
		if err == nil {
			return conn, nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("rabbitmq not reachable (%v): %w", err, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxStartupRedial)
	}
}

func isChannelGone(err error) bool {
	var amqpErr *amqp.Error
	return errors.Is(err, amqp.ErrClosed) || (errors.As(err, &amqpErr) && !amqpErr.Recover)
}

// declareTopology declares the dead-letter path before the conversion queue
// that points at it.
func declareTopology(ch *amqp.Channel) error {
	const (
		durable    = true
		autoDelete = false
		exclusive  = false
		noWait     = false
	)

	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, durable, autoDelete, false, noWait, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", dlxExchangeName, err)
	}

	dlq := DLQName(ConversionQueue)
	if _, err := ch.QueueDeclare(dlq, durable, autoDelete, exclusive, noWait, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, conversionRoutingKey, dlxExchangeName, noWait, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", dlq, err)
	}

	if _, err := ch.QueueDeclare(ConversionQueue, durable, autoDelete, exclusive, noWait, conversionQueueArgs()); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", ConversionQueue, err)
	}
	return nil
}

// conversionQueueArgs must match what the consumer declares, or the broker
// rejects the second declaration.
func conversionQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": conversionRoutingKey,
	}
}
