// README: Lifecycle events published by the order engine to presentation and brokers.
package events

import (
	"context"
	"time"

	"haul/internal/types"
)

type Type string

const (
	OrderUpdated    Type = "order_updated"
	OfferReceived   Type = "offer_received"
	PositionUpdated Type = "position_updated"
	OrderCancelled  Type = "order_cancelled"
)

type Event struct {
	Type    Type      `json:"type"`
	OrderID types.ID  `json:"order_id"`
	Status  string    `json:"status,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Position is the payload of PositionUpdated.
type Position struct {
	Location   types.Location `json:"location"`
	ETAMinutes int            `json:"eta_minutes"`
}

// Publisher must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink delivers events to an external broker.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard drops every event.
var Discard Publisher = discard{}
