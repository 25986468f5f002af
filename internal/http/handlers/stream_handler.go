// README: WebSocket stream of one order's lifecycle events.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"haul/internal/events"
	"haul/internal/modules/order"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Subscriber interface {
	Subscribe(filter func(events.Event) bool) (<-chan events.Event, func())
}

type StreamHandler struct {
	order    *order.Service
	events   Subscriber
	upgrader websocket.Upgrader
}

func NewStreamHandler(orderSvc *order.Service, sub Subscriber) *StreamHandler {
	return &StreamHandler{
		order:  orderSvc,
		events: sub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Order handles GET /ws/orders/:id. The first message is an order_updated
// snapshot; live events follow until the order ends or the client leaves.
func (h *StreamHandler) Order(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// Subscribe before the snapshot so nothing falls between the two.
	sub, unsubscribe := h.events.Subscribe(events.ForOrder(string(id)))
	defer unsubscribe()

	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	snapshot := events.Event{Type: events.OrderUpdated, OrderID: o.ID, Status: string(o.Status), Payload: o, At: o.UpdatedAt}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}
	if o.Status.Terminal() {
		closeNormally(conn)
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case e, ok := <-sub:
			if !ok {
				closeNormally(conn)
				return
			}
			if err := writeEvent(conn, e); err != nil {
				return
			}
			if endsStream(e) {
				closeNormally(conn)
				return
			}
		}
	}
}

func endsStream(e events.Event) bool {
	return e.Type == events.OrderCancelled ||
		(e.Type == events.OrderUpdated && e.Status == string(order.StatusDelivered))
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "order finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and cancels the stream when the connection drops.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
