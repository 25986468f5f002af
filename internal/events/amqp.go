// README: RabbitMQ sink publishing events to a topic exchange as order.<type>.
package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "amqp dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	s := newAMQPSinkWithChannel(ch, exchange)
	s.conn = conn
	return s, nil
}

func newAMQPSinkWithChannel(ch amqpChannel, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func RoutingKey(t Type) string {
	return "order." + string(t)
}

func (s *AMQPSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(e.OrderID),
		Timestamp:    e.At,
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(err, "amqp publish")
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
