// README: Order lifecycle engine; the single writer of status, offers and the accepted offer.
package order

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"haul/internal/events"
	"haul/internal/maps"
	"haul/internal/modules/pricing"
	"haul/internal/observability"
	"haul/internal/types"
)

const (
	maxWriteAttempts = 5
	// averageSpeedKmh turns a road distance into a delivery ETA.
	averageSpeedKmh = 50.0
)

type Pricing interface {
	Estimate(ctx context.Context, req pricing.PricingRequest) (pricing.PricingResult, error)
}

type Geo interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) string
	EstimateDistance(ctx context.Context, a, b types.Point) float64
}

// Dispatcher starts offer collection for a broadcast order. It must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, o Order)
}

// Tracker starts position updates for an accepted order. It must not block.
type Tracker interface {
	Track(ctx context.Context, o Order)
}

type Config struct {
	// SearchTimeout cancels orders that collected no acceptance in time. Zero disables.
	SearchTimeout time.Duration
	// PickupTimeout cancels accepted orders never picked up. Zero disables.
	PickupTimeout   time.Duration
	MonitorInterval time.Duration
}

type Service struct {
	store      Store
	pricing    Pricing
	geo        Geo
	publisher  events.Publisher
	dispatcher Dispatcher
	tracker    Tracker
	cfg        Config
	locks      *keyedMutex
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(store Store, pricing Pricing) *Service {
	return &Service{
		store:     store,
		pricing:   pricing,
		geo:       maps.Offline(),
		publisher: events.Discard,
		cfg:       Config{MonitorInterval: 30 * time.Second},
		locks:     newKeyedMutex(),
		logger:    slog.Default(),
		now:       time.Now,
	}
}

func (s *Service) WithGeo(geo Geo) *Service {
	s.geo = geo
	return s
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithDispatcher(d Dispatcher) *Service {
	s.dispatcher = d
	return s
}

func (s *Service) WithTracker(t Tracker) *Service {
	s.tracker = t
	return s
}

func (s *Service) WithConfig(cfg Config) *Service {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = s.cfg.MonitorInterval
	}
	s.cfg = cfg
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

type OpenCommand struct {
	ClientID types.ID
}

type CreateCommand struct {
	// OrderID optionally names an IDLE draft created by Open.
	OrderID        types.ID
	ClientID       types.ID
	Cargo          Cargo
	Pickup         types.Location
	SuggestedPrice int64
}

type BroadcastCommand struct {
	OrderID     types.ID
	Destination *types.Location
}

type AcceptCommand struct {
	OrderID types.ID
	OfferID string
}

type DriverBid struct {
	DriverID     types.ID
	DriverName   string
	DriverRating float64
	VehicleType  types.VehicleType
	ETAMinutes   int
	Origin       *types.Point
}

type AcceptAskingCommand struct {
	OrderID types.ID
	Driver  DriverBid
}

type CounterCommand struct {
	OrderID types.ID
	Price   int64
}

type CancelCommand struct {
	OrderID   types.ID
	ActorType string
	ActorID   *types.ID
	Reason    string
}

type change struct {
	actorType string
	actorID   *types.ID
	reason    string
}

type emitFunc func(ctx context.Context, o *Order, from Status)

// Open starts an empty IDLE draft for a client session.
func (s *Service) Open(ctx context.Context, cmd OpenCommand) (*Order, error) {
	if cmd.ClientID == "" {
		return nil, invalid("client id is required")
	}
	unlock := s.locks.lock(clientKey(cmd.ClientID))
	defer unlock()
	if err := s.ensureNoActive(ctx, cmd.ClientID); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:             types.NewID(),
		ClientID:       cmd.ClientID,
		Status:         StatusIdle,
		SuggestedPrice: types.DH(0),
		Offers:         []DriverOffer{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	who := change{actorType: ActorClient, actorID: &cmd.ClientID}
	s.recordTransition(ctx, o.ID, StatusNone, StatusIdle, who, now)
	s.publishOrder(ctx, o, StatusNone)
	return o, nil
}

// CreateRequest validates the cargo and pickup and moves the order to
// CONFIGURING, either from the named draft or as a fresh order.
func (s *Service) CreateRequest(ctx context.Context, cmd CreateCommand) (*Order, error) {
	cargo, err := normalizeCargo(cmd.Cargo)
	if err != nil {
		return nil, err
	}
	if !cmd.Pickup.Point().Valid() {
		return nil, invalid("pickup coordinates out of range")
	}
	if cmd.SuggestedPrice < 0 {
		return nil, invalid("suggested price must not be negative")
	}
	pickup := cmd.Pickup
	pickup.Address = strings.TrimSpace(pickup.Address)
	if pickup.Address == "" {
		pickup.Address = s.geo.ReverseGeocode(ctx, pickup.Lat, pickup.Lng)
	}
	price := types.DH(cmd.SuggestedPrice)

	if cmd.OrderID != "" {
		who := change{actorType: ActorClient}
		if cmd.ClientID != "" {
			who.actorID = &cmd.ClientID
		}
		o, err := s.mutate(ctx, cmd.OrderID, who, func(o *Order) error {
			if cmd.ClientID != "" && o.ClientID != cmd.ClientID {
				return ErrOrderNotFound
			}
			if o.Status != StatusIdle {
				return stateErr("configure", o.Status)
			}
			o.Cargo = cargo
			o.Pickup = pickup
			o.SuggestedPrice = price
			o.Status = StatusConfiguring
			return nil
		}, s.publishOrder)
		if err != nil {
			return nil, err
		}
		observability.OrdersCreated.Inc()
		return o, nil
	}

	if cmd.ClientID == "" {
		return nil, invalid("client id is required")
	}
	unlock := s.locks.lock(clientKey(cmd.ClientID))
	defer unlock()
	if err := s.ensureNoActive(ctx, cmd.ClientID); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:             types.NewID(),
		ClientID:       cmd.ClientID,
		Cargo:          cargo,
		Pickup:         pickup,
		SuggestedPrice: price,
		Status:         StatusConfiguring,
		Offers:         []DriverOffer{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	who := change{actorType: ActorClient, actorID: &cmd.ClientID}
	s.recordTransition(ctx, o.ID, StatusNone, StatusIdle, who, now)
	s.recordTransition(ctx, o.ID, StatusIdle, StatusConfiguring, who, now)
	s.publishOrder(ctx, o, StatusNone)
	observability.OrdersCreated.Inc()
	s.logger.Info("order created", "order_id", o.ID, "client_id", o.ClientID, "vehicle", o.Cargo.VehicleType)
	return o, nil
}

// Broadcast resolves the destination, prices the trip when the client gave
// no price, opens the order for offers and signals the dispatcher.
func (s *Service) Broadcast(ctx context.Context, cmd BroadcastCommand) error {
	cur, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if cur.Status != StatusConfiguring {
		return stateErr("broadcast", cur.Status)
	}
	if cmd.Destination == nil {
		return invalid("destination is required")
	}
	dest := *cmd.Destination
	if !dest.Point().Valid() {
		return invalid("destination coordinates out of range")
	}
	dest.Address = strings.TrimSpace(dest.Address)
	if dest.Address == "" {
		dest.Address = s.geo.ReverseGeocode(ctx, dest.Lat, dest.Lng)
	}
	distance := s.geo.EstimateDistance(ctx, cur.Pickup.Point(), dest.Point())
	price := cur.SuggestedPrice
	if price.Amount <= 0 && s.pricing != nil {
		res, err := s.pricing.Estimate(ctx, pricing.PricingRequest{
			DistanceKm: distance,
			WeightKg:   cur.Cargo.WeightKg(),
			Vehicle:    cur.Cargo.VehicleType,
		})
		if err != nil {
			s.logger.Warn("suggested price estimate failed", "order_id", cur.ID, "error", err)
		} else {
			price = res.Total
		}
	}

	o, err := s.mutate(ctx, cmd.OrderID, change{actorType: ActorClient, actorID: &cur.ClientID}, func(o *Order) error {
		if o.Status != StatusConfiguring {
			return stateErr("broadcast", o.Status)
		}
		now := s.now()
		o.Destination = &dest
		o.DistanceKm = distance
		if o.SuggestedPrice.Amount <= 0 {
			o.SuggestedPrice = price
		}
		o.BroadcastAt = &now
		o.Status = StatusSearching
		return nil
	}, s.publishOrder)
	if err != nil {
		return err
	}
	s.logger.Info("order broadcast", "order_id", o.ID, "distance_km", o.DistanceKm, "suggested_price", o.SuggestedPrice.Amount)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(context.WithoutCancel(ctx), *o)
	}
	return nil
}

// ReceiveOffer appends a driver offer. The first offer moves the order to
// NEGOTIATING. Orders no longer collecting offers are left untouched.
func (s *Service) ReceiveOffer(ctx context.Context, id types.ID, offer DriverOffer) (DriverOffer, error) {
	offer, err := normalizeOffer(offer, s.now())
	if err != nil {
		return DriverOffer{}, err
	}
	who := change{actorType: ActorDriver}
	if offer.DriverID != "" {
		who.actorID = &offer.DriverID
	}
	_, err = s.mutate(ctx, id, who, func(o *Order) error {
		if !o.Status.OpenForOffers() {
			return stateErr("receive offer", o.Status)
		}
		if _, dup := o.Offer(offer.ID); dup {
			return invalid("duplicate offer id %q", offer.ID)
		}
		o.Offers = append(o.Offers, offer)
		if o.Status == StatusSearching {
			o.Status = StatusNegotiating
		}
		return nil
	}, func(ctx context.Context, o *Order, from Status) {
		s.publish(ctx, events.OfferReceived, o, offer)
		if o.Status != from {
			s.publishOrder(ctx, o, from)
		}
	})
	if err != nil {
		return DriverOffer{}, err
	}
	observability.OffersReceived.Inc()
	return offer, nil
}

// AcceptOffer locks the order to one of its offers. Exactly one of any
// number of concurrent attempts succeeds; the rest get ErrAlreadyAccepted.
func (s *Service) AcceptOffer(ctx context.Context, cmd AcceptCommand) error {
	if cmd.OfferID == "" {
		return invalid("offer id is required")
	}
	o, err := s.mutate(ctx, cmd.OrderID, change{actorType: ActorClient}, func(o *Order) error {
		if err := checkAcceptable(o); err != nil {
			return err
		}
		offer, ok := o.Offer(cmd.OfferID)
		if !ok {
			return ErrOfferNotFound
		}
		s.lockIn(o, offer)
		return nil
	}, s.publishOrder)
	if err != nil {
		if errors.Is(err, ErrAlreadyAccepted) {
			observability.AcceptRaceLost.Inc()
		}
		return err
	}
	s.logger.Info("offer accepted", "order_id", o.ID, "offer_id", cmd.OfferID)
	s.startTracking(ctx, o)
	return nil
}

// AcceptAskingPrice is the driver side of acceptance: the driver takes the
// client's suggested price, which becomes an offer accepted in one step.
func (s *Service) AcceptAskingPrice(ctx context.Context, cmd AcceptAskingCommand) (DriverOffer, error) {
	bid := DriverOffer{
		DriverID:     cmd.Driver.DriverID,
		DriverName:   cmd.Driver.DriverName,
		DriverRating: cmd.Driver.DriverRating,
		VehicleType:  cmd.Driver.VehicleType,
		ETAMinutes:   cmd.Driver.ETAMinutes,
		Origin:       cmd.Driver.Origin,
	}
	if err := validateBid(bid); err != nil {
		return DriverOffer{}, err
	}
	who := change{actorType: ActorDriver}
	if bid.DriverID != "" {
		who.actorID = &bid.DriverID
	}

	var accepted DriverOffer
	o, err := s.mutate(ctx, cmd.OrderID, who, func(o *Order) error {
		if err := checkAcceptable(o); err != nil {
			return err
		}
		if o.SuggestedPrice.Amount <= 0 {
			return invalid("order has no asking price")
		}
		offer := bid
		offer.Price = o.SuggestedPrice
		offer, err := normalizeOffer(offer, s.now())
		if err != nil {
			return err
		}
		o.Offers = append(o.Offers, offer)
		s.lockIn(o, offer)
		accepted = offer
		return nil
	}, func(ctx context.Context, o *Order, from Status) {
		s.publish(ctx, events.OfferReceived, o, accepted)
		s.publishOrder(ctx, o, from)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyAccepted) {
			observability.AcceptRaceLost.Inc()
		}
		return DriverOffer{}, err
	}
	observability.OffersReceived.Inc()
	s.logger.Info("asking price accepted", "order_id", o.ID, "offer_id", accepted.ID, "driver", accepted.DriverName)
	s.startTracking(ctx, o)
	return accepted, nil
}

// CounterOffer revises the client's asking price until an offer is accepted.
func (s *Service) CounterOffer(ctx context.Context, cmd CounterCommand) error {
	if cmd.Price <= 0 {
		return invalid("price must be positive")
	}
	_, err := s.mutate(ctx, cmd.OrderID, change{actorType: ActorClient}, func(o *Order) error {
		if o.Status != StatusConfiguring && !o.Status.OpenForOffers() {
			return stateErr("counter offer", o.Status)
		}
		currency := o.SuggestedPrice.Currency
		if currency == "" {
			currency = types.DefaultCurrency
		}
		o.SuggestedPrice = types.Money{Amount: cmd.Price, Currency: currency}
		return nil
	}, s.publishOrder)
	return err
}

// Cancel is a no-op on orders that already ended.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	actor := cmd.ActorType
	if actor == "" {
		actor = ActorClient
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = actor + "_cancel"
	}
	_, err := s.mutate(ctx, cmd.OrderID, change{actorType: actor, actorID: cmd.ActorID, reason: reason}, func(o *Order) error {
		if o.Status.Terminal() {
			return errNoop
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return stateErr("cancel", o.Status)
		}
		now := s.now()
		o.CancelledAt = &now
		o.CancelReason = &reason
		o.Status = StatusCancelled
		return nil
	}, s.publishOrder)
	if errors.Is(err, errNoop) {
		return nil
	}
	if err == nil {
		s.logger.Info("order cancelled", "order_id", cmd.OrderID, "actor", actor, "reason", reason)
	}
	return err
}

// AdvanceDelivery steps ACCEPTED to PICKED_UP and PICKED_UP to DELIVERED.
func (s *Service) AdvanceDelivery(ctx context.Context, id types.ID) (Status, error) {
	o, err := s.mutate(ctx, id, change{actorType: ActorDriver}, func(o *Order) error {
		now := s.now()
		switch o.Status {
		case StatusAccepted:
			o.PickedUpAt = &now
			o.ETAMinutes = tripETA(o.DistanceKm)
			o.Status = StatusPickedUp
		case StatusPickedUp:
			o.DeliveredAt = &now
			if o.Destination != nil {
				d := *o.Destination
				o.DriverPosition = &d
			}
			o.ETAMinutes = 0
			o.Status = StatusDelivered
		default:
			return stateErr("advance delivery", o.Status)
		}
		return nil
	}, s.publishOrder)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// ReportPosition records a tracking update computed while the order was in
// phase. It fails with ErrInvalidState once the order is no longer ACCEPTED
// or PICKED_UP, so a late tick never reaches subscribers, and with
// ErrStalePosition when the order moved to the other tracking phase.
func (s *Service) ReportPosition(ctx context.Context, id types.ID, phase Status, pos types.Location, etaMinutes int) (*Order, error) {
	if !pos.Point().Valid() {
		return nil, invalid("position out of range")
	}
	if etaMinutes < 1 {
		etaMinutes = 1
	}
	o, err := s.mutate(ctx, id, change{actorType: ActorSystem}, func(o *Order) error {
		if !o.Status.Tracking() {
			return stateErr("report position", o.Status)
		}
		if o.Status != phase {
			return errors.Wrapf(ErrStalePosition, "%s report for %s order", phase, o.Status)
		}
		o.DriverPosition = &pos
		o.ETAMinutes = etaMinutes
		return nil
	}, func(ctx context.Context, o *Order, _ Status) {
		s.publish(ctx, events.PositionUpdated, o, events.Position{Location: pos, ETAMinutes: etaMinutes})
	})
	if err != nil {
		return nil, err
	}
	observability.TrackingTicks.Inc()
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// RankedOffers returns the order's offers in display order.
func (s *Service) RankedOffers(ctx context.Context, id types.ID) ([]DriverOffer, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return RankOffers(o.Offers), nil
}

// ListOpen is the driver job list: orders still collecting offers.
func (s *Service) ListOpen(ctx context.Context) ([]*Order, error) {
	return s.store.ListByStatus(ctx, StatusSearching, StatusNegotiating)
}

func (s *Service) Transitions(ctx context.Context, id types.ID) ([]Transition, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Transitions(ctx, id)
}

// Archive removes a finished order from the active set.
func (s *Service) Archive(ctx context.Context, id types.ID) error {
	unlock := s.locks.lock(string(id))
	defer unlock()
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !o.Status.Terminal() {
		return stateErr("archive", o.Status)
	}
	return s.store.Archive(ctx, id)
}

// mutate applies fn to a fresh copy of the order under the order's lock and
// stores it with a version check. emit runs after a successful write while
// the lock is still held, so events for one order leave in write order.
func (s *Service) mutate(ctx context.Context, id types.ID, who change, fn func(o *Order) error, emit emitFunc) (*Order, error) {
	unlock := s.locks.lock(string(id))
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		now := s.now()
		next.StatusVersion = cur.StatusVersion + 1
		next.UpdatedAt = now

		ok, err := s.store.Update(ctx, next, cur.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			observability.CASRetries.Inc()
			continue
		}
		if next.Status != cur.Status {
			s.recordTransition(ctx, id, cur.Status, next.Status, who, now)
		}
		if emit != nil {
			emit(ctx, next, cur.Status)
		}
		return next, nil
	}
	return nil, ErrConflict
}

func (s *Service) recordTransition(ctx context.Context, id types.ID, from, to Status, who change, at time.Time) {
	observability.Transitions.WithLabelValues(string(from), string(to)).Inc()
	err := s.store.AppendTransition(ctx, &Transition{
		OrderID:    id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  who.actorType,
		ActorID:    who.actorID,
		Reason:     who.reason,
		CreatedAt:  at,
	})
	if err != nil {
		s.logger.Error("append transition failed", "order_id", id, "from", from, "to", to, "error", err)
	}
}

func (s *Service) publishOrder(ctx context.Context, o *Order, from Status) {
	s.publish(ctx, events.OrderUpdated, o, o.Clone())
	if o.Status == StatusCancelled && from != StatusCancelled {
		reason := ""
		if o.CancelReason != nil {
			reason = *o.CancelReason
		}
		s.publish(ctx, events.OrderCancelled, o, map[string]string{"reason": reason})
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, o *Order, payload any) {
	s.publisher.Publish(ctx, events.Event{
		Type:    t,
		OrderID: o.ID,
		Status:  string(o.Status),
		Payload: payload,
		At:      s.now(),
	})
}

func (s *Service) ensureNoActive(ctx context.Context, clientID types.ID) error {
	active, err := s.store.HasActiveByClient(ctx, clientID)
	if err != nil {
		return err
	}
	if active {
		return ErrActiveOrder
	}
	return nil
}

func (s *Service) lockIn(o *Order, offer DriverOffer) {
	now := s.now()
	id := offer.ID
	o.AcceptedOfferID = &id
	o.AcceptedAt = &now
	o.ETAMinutes = offer.ETAMinutes
	if offer.Origin != nil {
		o.DriverPosition = &types.Location{Lat: offer.Origin.Lat, Lng: offer.Origin.Lng}
	}
	o.Status = StatusAccepted
}

func (s *Service) startTracking(ctx context.Context, o *Order) {
	if s.tracker != nil {
		s.tracker.Track(context.WithoutCancel(ctx), *o)
	}
}

func checkAcceptable(o *Order) error {
	if o.Status.Locked() || (o.AcceptedOfferID != nil && o.Status != StatusCancelled) {
		return ErrAlreadyAccepted
	}
	if !o.Status.OpenForOffers() {
		return stateErr("accept", o.Status)
	}
	return nil
}

func normalizeCargo(c Cargo) (Cargo, error) {
	c.ItemType = strings.TrimSpace(c.ItemType)
	if c.ItemType == "" {
		return c, invalid("item type is required")
	}
	if c.Weight <= 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
		return c, invalid("weight must be positive")
	}
	if c.VehicleType == "" {
		return c, invalid("vehicle type is required")
	}
	v, ok := types.ParseVehicleType(string(c.VehicleType))
	if !ok {
		return c, invalid("unknown vehicle type %q", c.VehicleType)
	}
	c.VehicleType = v
	switch c.WeightUnit {
	case "":
		c.WeightUnit = UnitKg
	case UnitKg, UnitTons:
	default:
		return c, invalid("unknown weight unit %q", c.WeightUnit)
	}
	if c.Category == "" {
		c.Category = CategoryOther
	} else if !c.Category.Valid() {
		return c, invalid("unknown category %q", c.Category)
	}
	return c, nil
}

// validateBid checks everything about an offer except its price.
func validateBid(of DriverOffer) error {
	if strings.TrimSpace(of.DriverName) == "" {
		return invalid("driver name is required")
	}
	if of.DriverRating < 0 || of.DriverRating > 5 || math.IsNaN(of.DriverRating) {
		return invalid("driver rating must be within [0,5]")
	}
	if !of.VehicleType.Valid() {
		return invalid("unknown vehicle type %q", of.VehicleType)
	}
	if of.ETAMinutes <= 0 {
		return invalid("eta must be positive")
	}
	if of.Origin != nil && !of.Origin.Valid() {
		return invalid("driver origin out of range")
	}
	return nil
}

func normalizeOffer(of DriverOffer, now time.Time) (DriverOffer, error) {
	if v, ok := types.ParseVehicleType(string(of.VehicleType)); ok {
		of.VehicleType = v
	}
	if err := validateBid(of); err != nil {
		return of, err
	}
	if of.Price.Amount <= 0 {
		return of, invalid("price must be positive")
	}
	if of.Price.Currency == "" {
		of.Price.Currency = types.DefaultCurrency
	}
	if of.ID == "" {
		of.ID = string(types.NewID())
	}
	of.DriverName = strings.TrimSpace(of.DriverName)
	if of.CreatedAt.IsZero() {
		of.CreatedAt = now
	}
	return of, nil
}

func tripETA(distanceKm float64) int {
	return max(1, int(math.Ceil(distanceKm/averageSpeedKmh*60)))
}

func clientKey(id types.ID) string {
	return "client:" + string(id)
}
