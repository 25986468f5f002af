package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOutWithFilter(t *testing.T) {
	bus := NewBus(4)
	all, unsubAll := bus.Subscribe(nil)
	defer unsubAll()
	one, unsubOne := bus.Subscribe(ForOrder("o1"))
	defer unsubOne()

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: OrderUpdated, OrderID: "o1"})
	bus.Publish(ctx, Event{Type: OrderUpdated, OrderID: "o2"})

	require.Len(t, all, 2)
	require.Len(t, one, 1)
	e := <-one
	assert.Equal(t, "o1", string(e.OrderID))
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	_, unsub := bus.Subscribe(nil)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(context.Background(), Event{Type: PositionUpdated, OrderID: "o1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(9), bus.Dropped())
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(1)
	ch, unsub := bus.Subscribe(nil)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	bus.Publish(context.Background(), Event{Type: OrderUpdated})
}

func TestBusClose(t *testing.T) {
	bus := NewBus(1)
	ch, unsub := bus.Subscribe(nil)
	bus.Close()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := bus.Subscribe(nil)
	_, ok = <-late
	assert.False(t, ok)
}
