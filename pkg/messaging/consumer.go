package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medlan/medlan-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// DefaultMaxRedeliveries is how many times a failing message is requeued
// before it is dead-lettered.
const DefaultMaxRedeliveries = 3

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq             *RabbitMQ
	queueName       string
	handlers        map[string]MessageHandler
	maxRedeliveries int
	logger          *logger.Logger
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return newConsumer(rmq, queueName, log), nil
}

func newConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		rmq:             rmq,
		queueName:       queueName,
		handlers:        make(map[string]MessageHandler),
		maxRedeliveries: DefaultMaxRedeliveries,
		logger:          log.WithComponent("consumer"),
	}
}

// Subscribe binds the queue to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue until ctx is done. When
// the broker closes the delivery channel the consumer reconnects and
// resumes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go c.run(ctx, msgs)

	return nil
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
			return
		case msg, ok := <-msgs:
			if ok {
				c.settle(msg, c.dispatch(ctx, msg.Body, getRetryCount(msg.Headers)))
				continue
			}

			c.logger.Warn().Str("queue", c.queueName).Msg("message channel closed, reconnecting")
			if err := c.rmq.Reconnect(ctx); err != nil {
				c.logger.Error().Err(err).Str("queue", c.queueName).Msg("consumer gave up reconnecting")
				return
			}
			var err error
			if msgs, err = c.consume(); err != nil {
				c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to resume consuming")
				return
			}
		}
	}
}

func (c *Consumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	case outcomeDeadLetter:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("queue", c.queueName).Msg("failed to settle message")
	}
}

// dispatch decodes the envelope, routes it to its handler and decides how
// the delivery is settled.
func (c *Consumer) dispatch(ctx context.Context, body []byte, retryCount int) outcome {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		return outcomeDeadLetter
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		return outcomeAck
	}

	if err := handler(ctx, &event); err != nil {
		c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Int("retry_count", retryCount).
			Msg("failed to process event")

		if retryCount >= c.maxRedeliveries {
			return outcomeDeadLetter
		}
		return outcomeRequeue
	}

	return outcomeAck
}

func getRetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}

	if deaths, ok := headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if count, ok := d["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	return 0
}
