package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

type recordingSink struct {
	got chan Event
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.got <- e
	return errors.New("broker down")
}

func TestKafkaSinkSend(t *testing.T) {
	fw := &fakeWriter{}
	sink := newKafkaSinkWithWriter(fw, "order-events")

	require.NoError(t, sink.Send(context.Background(), Event{Type: OfferReceived, OrderID: "o1"}))
	require.Len(t, fw.last, 1)
	require.Equal(t, "order-events", fw.last[0].Topic)
	require.Equal(t, []byte("o1"), fw.last[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(fw.last[0].Value, &decoded))
	require.Equal(t, OfferReceived, decoded.Type)
}

func TestKafkaSinkWrapsWriterError(t *testing.T) {
	sink := newKafkaSinkWithWriter(&fakeWriter{err: errors.New("boom")}, "t")
	err := sink.Send(context.Background(), Event{Type: OrderUpdated, OrderID: "o1"})
	require.ErrorContains(t, err, "kafka publish")
}

func TestAMQPSinkRoutingKey(t *testing.T) {
	ch := &fakeChannel{}
	sink := newAMQPSinkWithChannel(ch, "haul.orders")

	require.NoError(t, sink.Send(context.Background(), Event{Type: OrderCancelled, OrderID: "o9"}))
	require.Equal(t, "haul.orders", ch.exchange)
	require.Equal(t, "order.order_cancelled", ch.key)
	require.Equal(t, "application/json", ch.msg.ContentType)
	require.Equal(t, "o9", ch.msg.MessageId)
}

func TestForwardKeepsGoingAfterSendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan Event, 2)
	sink := &recordingSink{got: make(chan Event, 2)}
	done := make(chan struct{})
	go func() {
		Forward(ctx, in, sink, nil)
		close(done)
	}()

	in <- Event{Type: OrderUpdated, OrderID: "a"}
	in <- Event{Type: OrderUpdated, OrderID: "b"}
	for _, want := range []string{"a", "b"} {
		select {
		case e := <-sink.got:
			require.Equal(t, want, string(e.OrderID))
		case <-time.After(time.Second):
			t.Fatal("event not forwarded")
		}
	}

	close(in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not stop on closed channel")
	}
}
