// README: Order aggregate, driver offers and status definitions.
package order

import (
	"slices"
	"time"

	"haul/internal/types"
)

type Status string

const (
	StatusNone        Status = "NONE"
	StatusIdle        Status = "IDLE"
	StatusConfiguring Status = "CONFIGURING"
	StatusSearching   Status = "SEARCHING"
	StatusNegotiating Status = "NEGOTIATING"
	StatusAccepted    Status = "ACCEPTED"
	StatusPickedUp    Status = "PICKED_UP"
	StatusDelivered   Status = "DELIVERED"
	StatusCancelled   Status = "CANCELLED"
)

type Category string

const (
	CategoryFurniture    Category = "Furniture"
	CategoryAppliances   Category = "Appliances"
	CategoryConstruction Category = "Construction"
	CategoryLaundry      Category = "Laundry"
	CategoryFragile      Category = "Fragile"
	CategoryFood         Category = "Food"
	CategoryElectronics  Category = "Electronics"
	CategoryOther        Category = "Other"
)

var categories = []Category{
	CategoryFurniture, CategoryAppliances, CategoryConstruction, CategoryLaundry,
	CategoryFragile, CategoryFood, CategoryElectronics, CategoryOther,
}

func (c Category) Valid() bool {
	return slices.Contains(categories, c)
}

type WeightUnit string

const (
	UnitKg   WeightUnit = "kg"
	UnitTons WeightUnit = "tons"
)

// Cargo is the client-supplied description of the load.
type Cargo struct {
	ItemType    string            `json:"item_type"`
	Category    Category          `json:"category"`
	Weight      float64           `json:"weight"`
	WeightUnit  WeightUnit        `json:"weight_unit"`
	VehicleType types.VehicleType `json:"vehicle_type"`
}

func (c Cargo) WeightKg() float64 {
	if c.WeightUnit == UnitTons {
		return c.Weight * 1000
	}
	return c.Weight
}

// DriverOffer is immutable once created.
type DriverOffer struct {
	ID           string            `json:"id"`
	DriverID     types.ID          `json:"driver_id,omitempty"`
	DriverName   string            `json:"driver_name"`
	DriverRating float64           `json:"driver_rating"`
	VehicleType  types.VehicleType `json:"vehicle_type"`
	Price        types.Money       `json:"price"`
	ETAMinutes   int               `json:"eta_minutes"`
	Origin       *types.Point      `json:"origin,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type Order struct {
	ID              types.ID        `json:"id"`
	ClientID        types.ID        `json:"client_id"`
	Cargo           Cargo           `json:"cargo"`
	Pickup          types.Location  `json:"pickup"`
	Destination     *types.Location `json:"destination,omitempty"`
	DistanceKm      float64         `json:"distance_km"`
	SuggestedPrice  types.Money     `json:"suggested_price"`
	Status          Status          `json:"status"`
	StatusVersion   int             `json:"status_version"`
	Offers          []DriverOffer   `json:"offers"`
	AcceptedOfferID *string         `json:"accepted_offer_id,omitempty"`
	DriverPosition  *types.Location `json:"driver_position,omitempty"`
	ETAMinutes      int             `json:"eta_minutes,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	BroadcastAt     *time.Time      `json:"broadcast_at,omitempty"`
	AcceptedAt      *time.Time      `json:"accepted_at,omitempty"`
	PickedUpAt      *time.Time      `json:"picked_up_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
}

// Transition is one entry of the order's status history.
type Transition struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	Reason     string
	CreatedAt  time.Time
}

const (
	ActorClient = "client"
	ActorDriver = "driver"
	ActorSystem = "system"
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusIdle:        {StatusConfiguring, StatusCancelled},
	StatusConfiguring: {StatusSearching, StatusCancelled},
	StatusSearching:   {StatusNegotiating, StatusAccepted, StatusCancelled},
	StatusNegotiating: {StatusAccepted, StatusCancelled},
	StatusAccepted:    {StatusPickedUp, StatusCancelled},
	StatusPickedUp:    {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(AllowedTransitions[from], to)
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Active orders count against the one-order-per-client rule.
func (s Status) Active() bool {
	return s != StatusNone && !s.Terminal()
}

// OpenForOffers reports whether offers may still be appended.
func (s Status) OpenForOffers() bool {
	return s == StatusSearching || s == StatusNegotiating
}

// Locked reports whether an offer has been accepted.
func (s Status) Locked() bool {
	return s == StatusAccepted || s == StatusPickedUp || s == StatusDelivered
}

// Tracking reports whether driver positions are meaningful.
func (s Status) Tracking() bool {
	return s == StatusAccepted || s == StatusPickedUp
}

func (o *Order) Offer(id string) (DriverOffer, bool) {
	for _, of := range o.Offers {
		if of.ID == id {
			return of, true
		}
	}
	return DriverOffer{}, false
}

func (o *Order) AcceptedOffer() (DriverOffer, bool) {
	if o.AcceptedOfferID == nil {
		return DriverOffer{}, false
	}
	return o.Offer(*o.AcceptedOfferID)
}

// Clone returns a deep copy so stores never share memory with callers.
func (o *Order) Clone() *Order {
	c := *o
	c.Offers = slices.Clone(o.Offers)
	for i := range c.Offers {
		if p := c.Offers[i].Origin; p != nil {
			v := *p
			c.Offers[i].Origin = &v
		}
	}
	c.Destination = clonePtr(o.Destination)
	c.AcceptedOfferID = clonePtr(o.AcceptedOfferID)
	c.DriverPosition = clonePtr(o.DriverPosition)
	c.CancelReason = clonePtr(o.CancelReason)
	c.BroadcastAt = clonePtr(o.BroadcastAt)
	c.AcceptedAt = clonePtr(o.AcceptedAt)
	c.PickedUpAt = clonePtr(o.PickedUpAt)
	c.DeliveredAt = clonePtr(o.DeliveredAt)
	c.CancelledAt = clonePtr(o.CancelledAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
