package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg ConversionMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid conversion message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.RequestedAt.UTC(),
		// The session id lets the consumer drop redelivered requests.
		MessageId: msg.SessionID,
		Body:      payload,
	}
	if run, ok := observability.RunFromContext(ctx); ok {
		publishing.CorrelationId = run.RunID
	}

	return p.client.publish(ctx, queue, publishing)
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// ConversionPublisher hands completed trial sessions to the subscription
// service through the conversion queue.
type ConversionPublisher struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	timeout   time.Duration
}

const defaultConversionPublishTimeout = 5 * time.Second

func NewConversionPublisher(publisher Publisher, logger *zap.Logger) (*ConversionPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConversionPublisher{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		timeout:   defaultConversionPublishTimeout,
	}, nil
}

func (c *ConversionPublisher) ConvertTrialIfEligible(ctx context.Context, sessionID string) error {
	msg := ConversionMessage{
		SessionID:   sessionID,
		RequestedAt: c.now().UTC(),
	}
	publishCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.publisher.Publish(publishCtx, ConversionQueue, msg); err != nil {
		return fmt.Errorf("failed to request trial conversion: %w", err)
	}

	observability.WithContextLogger(c.logger, ctx).Info("trial conversion requested",
		zap.String("sessionId", sessionID),
	)
	return nil
}
