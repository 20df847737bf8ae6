package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes events to a RabbitMQ topic exchange. The routing key
// is the event type, so consumers can bind patterns like "generation.*".
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPSink connects to the broker and declares the exchange.
func NewAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to event broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshaling event", "type", event.Type, "error", err)
		return
	}
	err = s.channel.PublishWithContext(ctx, s.exchange, event.Type, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		s.logger.Error("publishing event",
			"type", event.Type,
			"document_id", event.DocumentID,
			"error", err)
	}
}

func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

var _ Sink = (*AMQPSink)(nil)
