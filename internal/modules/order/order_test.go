// README: Order service tests (flow, scenarios, invalid requests).
package order

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"haul/internal/events"
	"haul/internal/modules/pricing"
	"haul/internal/types"
)

var (
	casablanca = types.Location{Lat: 33.5731, Lng: -7.5898, Address: "Maarif, Casablanca"}
	rabat      = types.Location{Lat: 34.0209, Lng: -6.8416, Address: "Agdal, Rabat"}
)

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, o Order) { m.Called(ctx, o) }

type mockTracker struct{ mock.Mock }

func (m *mockTracker) Track(ctx context.Context, o Order) { m.Called(ctx, o) }

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus(256)
	t.Cleanup(bus.Close)
	svc := NewService(NewMemoryStore(), pricing.NewService(nil)).WithPublisher(bus)
	return svc, bus
}

func vanCargo() Cargo {
	return Cargo{ItemType: "Sofa", Category: CategoryFurniture, Weight: 50, WeightUnit: UnitKg, VehicleType: types.VehicleVan}
}

func mustCreate(t *testing.T, svc *Service, clientID types.ID) *Order {
	t.Helper()
	o, err := svc.CreateRequest(context.Background(), CreateCommand{
		ClientID: clientID,
		Cargo:    vanCargo(),
		Pickup:   casablanca,
	})
	require.NoError(t, err)
	return o
}

func mustBroadcast(t *testing.T, svc *Service, clientID types.ID) *Order {
	t.Helper()
	o := mustCreate(t, svc, clientID)
	dest := rabat
	require.NoError(t, svc.Broadcast(context.Background(), BroadcastCommand{OrderID: o.ID, Destination: &dest}))
	return o
}

func mustOffer(t *testing.T, svc *Service, id types.ID, name string, price int64, eta int) DriverOffer {
	t.Helper()
	of, err := svc.ReceiveOffer(context.Background(), id, DriverOffer{
		DriverName:   name,
		DriverRating: 4.8,
		VehicleType:  types.VehicleVan,
		Price:        types.DH(price),
		ETAMinutes:   eta,
	})
	require.NoError(t, err)
	return of
}

func assertStatus(t *testing.T, svc *Service, id types.ID, want Status) {
	t.Helper()
	o, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, o.Status)
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

// TestCanTransition verifies the state machine transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusConfiguring, true},
		{StatusConfiguring, StatusSearching, true},
		{StatusSearching, StatusNegotiating, true},
		{StatusSearching, StatusAccepted, true},
		{StatusNegotiating, StatusAccepted, true},
		{StatusAccepted, StatusPickedUp, true},
		{StatusPickedUp, StatusDelivered, true},
		// cancels before pickup
		{StatusIdle, StatusCancelled, true},
		{StatusConfiguring, StatusCancelled, true},
		{StatusSearching, StatusCancelled, true},
		{StatusNegotiating, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		// no cancel once loaded, terminal states are final
		{StatusPickedUp, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusSearching, false},
		// skipping states
		{StatusIdle, StatusSearching, false},
		{StatusConfiguring, StatusAccepted, false},
		{StatusAccepted, StatusDelivered, false},
		{StatusNegotiating, StatusSearching, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestScenarioAcceptSecondCheapestOffer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o := mustBroadcast(t, svc, "client-1")
	assertStatus(t, svc, o.ID, StatusSearching)

	cheap := mustOffer(t, svc, o.ID, "Yassine Express", 180, 5)
	assertStatus(t, svc, o.ID, StatusNegotiating)
	pricey := mustOffer(t, svc, o.ID, "Ahmed Transport", 250, 8)

	ranked, err := svc.RankedOffers(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, []int64{180, 250}, []int64{ranked[0].Price.Amount, ranked[1].Price.Amount})
	assert.Equal(t, cheap.ID, ranked[0].ID)

	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: pricey.ID}))

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedOfferID)
	assert.Equal(t, pricey.ID, *got.AcceptedOfferID)
	assert.Equal(t, 8, got.ETAMinutes)
	assert.Len(t, got.Offers, 2)

	_, err = svc.ReceiveOffer(ctx, o.ID, DriverOffer{DriverName: "Late", VehicleType: types.VehicleVan, Price: types.DH(90), ETAMinutes: 2})
	require.ErrorIs(t, err, ErrInvalidState)
	got, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Offers, 2)
}

func TestScenarioAcceptOnIdleOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.Open(ctx, OpenCommand{ClientID: "client-idle"})
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, o.Status)

	err = svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: "anything"})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NotErrorIs(t, err, ErrAlreadyAccepted)
	assertStatus(t, svc, o.ID, StatusIdle)
}

func TestCreateRequestValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(c *CreateCommand){
		"zero weight":       func(c *CreateCommand) { c.Cargo.Weight = 0 },
		"negative weight":   func(c *CreateCommand) { c.Cargo.Weight = -3 },
		"vehicle unset":     func(c *CreateCommand) { c.Cargo.VehicleType = "" },
		"unknown vehicle":   func(c *CreateCommand) { c.Cargo.VehicleType = "BIKE" },
		"missing item":      func(c *CreateCommand) { c.Cargo.ItemType = "  " },
		"bad unit":          func(c *CreateCommand) { c.Cargo.WeightUnit = "lbs" },
		"bad category":      func(c *CreateCommand) { c.Cargo.Category = "Pets" },
		"pickup off globe":  func(c *CreateCommand) { c.Pickup.Lat = 120 },
		"negative price":    func(c *CreateCommand) { c.SuggestedPrice = -1 },
		"missing client id": func(c *CreateCommand) { c.ClientID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := CreateCommand{ClientID: "client-v", Cargo: vanCargo(), Pickup: casablanca}
			mutate(&cmd)
			_, err := svc.CreateRequest(ctx, cmd)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateRequestDefaultsAndGeocoding(t *testing.T) {
	svc, _ := newTestService(t)
	o, err := svc.CreateRequest(context.Background(), CreateCommand{
		ClientID: "client-d",
		Cargo:    Cargo{ItemType: "Bricks", Weight: 2, WeightUnit: UnitTons, VehicleType: "truck"},
		Pickup:   types.Location{Lat: 33.5731, Lng: -7.5898},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfiguring, o.Status)
	assert.Equal(t, CategoryOther, o.Cargo.Category)
	assert.Equal(t, types.VehicleTruck, o.Cargo.VehicleType)
	assert.Equal(t, 2000.0, o.Cargo.WeightKg())
	assert.Equal(t, "Location at 33.5731, -7.5898", o.Pickup.Address)
}

func TestOneActiveOrderPerClient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o := mustCreate(t, svc, "client-a")
	_, err := svc.CreateRequest(ctx, CreateCommand{ClientID: "client-a", Cargo: vanCargo(), Pickup: casablanca})
	require.ErrorIs(t, err, ErrActiveOrder)
	_, err = svc.Open(ctx, OpenCommand{ClientID: "client-a"})
	require.ErrorIs(t, err, ErrActiveOrder)

	require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID}))
	mustCreate(t, svc, "client-a")
}

func TestOpenThenConfigureDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.Open(ctx, OpenCommand{ClientID: "client-draft"})
	require.NoError(t, err)

	_, err = svc.CreateRequest(ctx, CreateCommand{OrderID: draft.ID, ClientID: "someone-else", Cargo: vanCargo(), Pickup: casablanca})
	require.ErrorIs(t, err, ErrNotFound)

	o, err := svc.CreateRequest(ctx, CreateCommand{OrderID: draft.ID, ClientID: "client-draft", Cargo: vanCargo(), Pickup: casablanca, SuggestedPrice: 200})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, o.ID)
	assert.Equal(t, StatusConfiguring, o.Status)
	assert.Equal(t, int64(200), o.SuggestedPrice.Amount)

	_, err = svc.CreateRequest(ctx, CreateCommand{OrderID: draft.ID, Cargo: vanCargo(), Pickup: casablanca})
	require.ErrorIs(t, err, ErrInvalidState)

	log, err := svc.Transitions(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, StatusNone, log[0].FromStatus)
	assert.Equal(t, StatusIdle, log[1].FromStatus)
	assert.Equal(t, StatusConfiguring, log[1].ToStatus)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("requires destination", func(t *testing.T) {
		svc, _ := newTestService(t)
		o := mustCreate(t, svc, "c")
		require.ErrorIs(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: o.ID}), ErrValidation)
		bad := types.Location{Lat: 10, Lng: 200}
		require.ErrorIs(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: o.ID, Destination: &bad}), ErrValidation)
		assertStatus(t, svc, o.ID, StatusConfiguring)
	})

	t.Run("only from configuring", func(t *testing.T) {
		svc, _ := newTestService(t)
		o := mustBroadcast(t, svc, "c")
		dest := rabat
		require.ErrorIs(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: o.ID, Destination: &dest}), ErrInvalidState)
		draft, err := svc.Open(ctx, OpenCommand{ClientID: "other"})
		require.NoError(t, err)
		require.ErrorIs(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: draft.ID, Destination: &dest}), ErrInvalidState)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _ := newTestService(t)
		dest := rabat
		require.ErrorIs(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: "nope", Destination: &dest}), ErrNotFound)
	})

	t.Run("derives distance and price and dispatches", func(t *testing.T) {
		svc, _ := newTestService(t)
		d := &mockDispatcher{}
		d.On("Dispatch", mock.Anything, mock.MatchedBy(func(o Order) bool { return o.Status == StatusSearching })).Once()
		svc.WithDispatcher(d)

		o := mustBroadcast(t, svc, "c")
		got, err := svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.InDelta(t, 85, got.DistanceKm, 2)
		assert.Equal(t, 120+int64(math.Ceil(got.DistanceKm))*6, got.SuggestedPrice.Amount)
		require.NotNil(t, got.BroadcastAt)
		d.AssertExpectations(t)
	})

	t.Run("keeps the client's price", func(t *testing.T) {
		svc, _ := newTestService(t)
		o, err := svc.CreateRequest(ctx, CreateCommand{ClientID: "c", Cargo: vanCargo(), Pickup: casablanca, SuggestedPrice: 300})
		require.NoError(t, err)
		dest := types.Location{Lat: rabat.Lat, Lng: rabat.Lng}
		require.NoError(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: o.ID, Destination: &dest}))
		got, err := svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), got.SuggestedPrice.Amount)
		assert.Equal(t, "Location at 34.0209, -6.8416", got.Destination.Address)
	})
}

func TestReceiveOfferValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")

	bad := []DriverOffer{
		{DriverName: "", VehicleType: types.VehicleVan, Price: types.DH(100), ETAMinutes: 3},
		{DriverName: "x", DriverRating: 5.1, VehicleType: types.VehicleVan, Price: types.DH(100), ETAMinutes: 3},
		{DriverName: "x", VehicleType: "BOAT", Price: types.DH(100), ETAMinutes: 3},
		{DriverName: "x", VehicleType: types.VehicleVan, Price: types.DH(0), ETAMinutes: 3},
		{DriverName: "x", VehicleType: types.VehicleVan, Price: types.DH(100), ETAMinutes: 0},
	}
	for _, of := range bad {
		_, err := svc.ReceiveOffer(ctx, o.ID, of)
		require.ErrorIs(t, err, ErrValidation)
	}
	assertStatus(t, svc, o.ID, StatusSearching)

	first, err := svc.ReceiveOffer(ctx, o.ID, DriverOffer{ID: "d1", DriverName: "x", VehicleType: types.VehicleVan, Price: types.DH(100), ETAMinutes: 3})
	require.NoError(t, err)
	assert.Equal(t, "d1", first.ID)
	assert.Equal(t, types.DefaultCurrency, first.Price.Currency)
	_, err = svc.ReceiveOffer(ctx, o.ID, DriverOffer{ID: "d1", DriverName: "y", VehicleType: types.VehicleVan, Price: types.DH(110), ETAMinutes: 3})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReceiveOfferBeforeBroadcast(t *testing.T) {
	svc, _ := newTestService(t)
	o := mustCreate(t, svc, "c")
	_, err := svc.ReceiveOffer(context.Background(), o.ID, DriverOffer{DriverName: "x", VehicleType: types.VehicleVan, Price: types.DH(100), ETAMinutes: 3})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestAcceptOfferErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")
	of := mustOffer(t, svc, o.ID, "Yassine Express", 180, 5)

	require.ErrorIs(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID}), ErrValidation)
	require.ErrorIs(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: "ghost"}), ErrNotFound)
	require.ErrorIs(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: "ghost", OfferID: of.ID}), ErrNotFound)

	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
	err := svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID})
	require.ErrorIs(t, err, ErrAlreadyAccepted)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Reason: "changed my mind"}))
	err = svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NotErrorIs(t, err, ErrAlreadyAccepted)
}

func TestAcceptStartsTracking(t *testing.T) {
	svc, _ := newTestService(t)
	tr := &mockTracker{}
	tr.On("Track", mock.Anything, mock.MatchedBy(func(o Order) bool {
		return o.Status == StatusAccepted && o.AcceptedOfferID != nil
	})).Once()
	svc.WithTracker(tr)

	o := mustBroadcast(t, svc, "c")
	of := mustOffer(t, svc, o.ID, "Yassine Express", 180, 5)
	require.NoError(t, svc.AcceptOffer(context.Background(), AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
	tr.AssertExpectations(t)
}

func TestAcceptAskingPrice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	o, err := svc.CreateRequest(ctx, CreateCommand{ClientID: "c", Cargo: vanCargo(), Pickup: casablanca, SuggestedPrice: 1500})
	require.NoError(t, err)
	dest := rabat
	require.NoError(t, svc.Broadcast(ctx, BroadcastCommand{OrderID: o.ID, Destination: &dest}))

	_, err = svc.AcceptAskingPrice(ctx, AcceptAskingCommand{OrderID: o.ID, Driver: DriverBid{DriverName: "", VehicleType: types.VehicleVan, ETAMinutes: 4}})
	require.ErrorIs(t, err, ErrValidation)

	origin := types.Point{Lat: 33.58, Lng: -7.6}
	of, err := svc.AcceptAskingPrice(ctx, AcceptAskingCommand{OrderID: o.ID, Driver: DriverBid{
		DriverID: "drv-7", DriverName: "Karim", DriverRating: 4.6, VehicleType: types.VehicleTruck, ETAMinutes: 4, Origin: &origin,
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), of.Price.Amount)

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, of.ID, *got.AcceptedOfferID)
	require.NotNil(t, got.DriverPosition)
	assert.Equal(t, origin, got.DriverPosition.Point())

	_, err = svc.AcceptAskingPrice(ctx, AcceptAskingCommand{OrderID: o.ID, Driver: DriverBid{DriverName: "Late", VehicleType: types.VehicleVan, ETAMinutes: 4}})
	require.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestCounterOffer(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")
	ch, unsub := bus.Subscribe(events.ForOrder(string(o.ID)))
	defer unsub()

	require.ErrorIs(t, svc.CounterOffer(ctx, CounterCommand{OrderID: o.ID, Price: 0}), ErrValidation)
	require.NoError(t, svc.CounterOffer(ctx, CounterCommand{OrderID: o.ID, Price: 999}))
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DH(999), got.SuggestedPrice)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, events.OrderUpdated, evs[0].Type)

	of := mustOffer(t, svc, o.ID, "x", 900, 3)
	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
	require.ErrorIs(t, svc.CounterOffer(ctx, CounterCommand{OrderID: o.ID, Price: 1000}), ErrInvalidState)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		svc, bus := newTestService(t)
		o := mustBroadcast(t, svc, "c")
		ch, unsub := bus.Subscribe(events.ForOrder(string(o.ID)))
		defer unsub()

		require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Reason: "found another way"}))
		require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Reason: "again"}))

		got, err := svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, "found another way", *got.CancelReason)

		var kinds []events.Type
		for _, e := range drain(ch) {
			kinds = append(kinds, e.Type)
		}
		assert.Equal(t, []events.Type{events.OrderUpdated, events.OrderCancelled}, kinds)
	})

	t.Run("from every pre-pickup state", func(t *testing.T) {
		svc, _ := newTestService(t)
		draft, err := svc.Open(ctx, OpenCommand{ClientID: "idle"})
		require.NoError(t, err)
		configuring := mustCreate(t, svc, "configuring")
		searching := mustBroadcast(t, svc, "searching")
		negotiating := mustBroadcast(t, svc, "negotiating")
		mustOffer(t, svc, negotiating.ID, "x", 100, 3)
		accepted := mustBroadcast(t, svc, "accepted")
		of := mustOffer(t, svc, accepted.ID, "x", 100, 3)
		require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: accepted.ID, OfferID: of.ID}))

		for _, id := range []types.ID{draft.ID, configuring.ID, searching.ID, negotiating.ID, accepted.ID} {
			require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: id}))
			assertStatus(t, svc, id, StatusCancelled)
		}
	})

	t.Run("not after pickup", func(t *testing.T) {
		svc, _ := newTestService(t)
		o := mustBroadcast(t, svc, "c")
		of := mustOffer(t, svc, o.ID, "x", 100, 3)
		require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
		_, err := svc.AdvanceDelivery(ctx, o.ID)
		require.NoError(t, err)

		require.ErrorIs(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID}), ErrInvalidState)
		assertStatus(t, svc, o.ID, StatusPickedUp)

		_, err = svc.AdvanceDelivery(ctx, o.ID)
		require.NoError(t, err)
		require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID}))
		assertStatus(t, svc, o.ID, StatusDelivered)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.ErrorIs(t, svc.Cancel(ctx, CancelCommand{OrderID: "missing"}), ErrNotFound)
	})
}

func TestAdvanceDeliverySequence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")

	_, err := svc.AdvanceDelivery(ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assertStatus(t, svc, o.ID, StatusSearching)

	of := mustOffer(t, svc, o.ID, "x", 100, 3)
	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))

	st, err := svc.AdvanceDelivery(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPickedUp, st)
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, tripETA(got.DistanceKm), got.ETAMinutes)

	st, err = svc.AdvanceDelivery(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)
	got, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DriverPosition.SamePlace(*got.Destination))

	_, err = svc.AdvanceDelivery(ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assertStatus(t, svc, o.ID, StatusDelivered)
}

func TestReportPosition(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")
	of := mustOffer(t, svc, o.ID, "x", 100, 3)

	pos := types.Location{Lat: 33.6, Lng: -7.5}
	_, err := svc.ReportPosition(ctx, o.ID, StatusAccepted, pos, 5)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
	ch, unsub := bus.Subscribe(events.ForOrder(string(o.ID)))
	defer unsub()

	got, err := svc.ReportPosition(ctx, o.ID, StatusAccepted, pos, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ETAMinutes)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, events.PositionUpdated, evs[0].Type)
	assert.Equal(t, events.Position{Location: pos, ETAMinutes: 1}, evs[0].Payload)

	require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: o.ID}))
	drain(ch)
	_, err = svc.ReportPosition(ctx, o.ID, StatusAccepted, pos, 4)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, drain(ch))
}

func TestReportPositionRejectsPreviousPhase(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	o := mustBroadcast(t, svc, "c")
	of := mustOffer(t, svc, o.ID, "x", 100, 5)
	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))
	_, err := svc.AdvanceDelivery(ctx, o.ID)
	require.NoError(t, err)
	picked, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)

	ch, unsub := bus.Subscribe(events.ForOrder(string(o.ID)))
	defer unsub()

	_, err = svc.ReportPosition(ctx, o.ID, StatusAccepted, types.Location{Lat: 33.6, Lng: -7.5}, 3)
	require.ErrorIs(t, err, ErrStalePosition)
	require.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, drain(ch))

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, picked.ETAMinutes, got.ETAMinutes)
	assert.Equal(t, picked.StatusVersion, got.StatusVersion)

	got, err = svc.ReportPosition(ctx, o.ID, StatusPickedUp, types.Location{Lat: 33.7, Lng: -7.4}, picked.ETAMinutes-1)
	require.NoError(t, err)
	assert.Equal(t, picked.ETAMinutes-1, got.ETAMinutes)
}

func TestEventsForHappyPath(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	all, unsub := bus.Subscribe(nil)
	defer unsub()

	o := mustBroadcast(t, svc, "c")
	of := mustOffer(t, svc, o.ID, "x", 100, 3)
	mustOffer(t, svc, o.ID, "y", 120, 3)
	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: o.ID, OfferID: of.ID}))

	var got []string
	for _, e := range drain(all) {
		got = append(got, string(e.Type)+":"+e.Status)
	}
	assert.Equal(t, []string{
		"order_updated:CONFIGURING",
		"order_updated:SEARCHING",
		"offer_received:NEGOTIATING",
		"order_updated:NEGOTIATING",
		"offer_received:NEGOTIATING",
		"order_updated:ACCEPTED",
	}, got)
}

func TestListOpenAndArchive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "configuring")
	a := mustBroadcast(t, svc, "a")
	b := mustBroadcast(t, svc, "b")
	mustOffer(t, svc, b.ID, "x", 100, 3)

	open, err := svc.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.ElementsMatch(t, []types.ID{a.ID, b.ID}, []types.ID{open[0].ID, open[1].ID})

	require.ErrorIs(t, svc.Archive(ctx, a.ID), ErrInvalidState)
	require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: a.ID}))
	require.NoError(t, svc.Archive(ctx, a.ID))

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NoError(t, svc.Cancel(ctx, CancelCommand{OrderID: a.ID}))

	open, err = svc.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, b.ID, open[0].ID)
}

func TestExpireStale(t *testing.T) {
	svc, _ := newTestService(t)
	svc.WithConfig(Config{SearchTimeout: time.Minute, PickupTimeout: time.Hour})
	ctx := context.Background()

	stale := mustBroadcast(t, svc, "stale")
	accepted := mustBroadcast(t, svc, "accepted")
	of := mustOffer(t, svc, accepted.ID, "x", 100, 3)
	require.NoError(t, svc.AcceptOffer(ctx, AcceptCommand{OrderID: accepted.ID, OfferID: of.ID}))

	n, err := svc.ExpireStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.ExpireStale(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, ReasonSearchTimeout, *got.CancelReason)
	assertStatus(t, svc, accepted.ID, StatusAccepted)

	n, err = svc.ExpireStale(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = svc.Get(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonPickupTimeout, *got.CancelReason)
}

func TestExpireStaleDisabled(t *testing.T) {
	svc, _ := newTestService(t)
	mustBroadcast(t, svc, "c")
	n, err := svc.ExpireStale(context.Background(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRankOffers(t *testing.T) {
	offers := []DriverOffer{
		{ID: "heavy", Price: types.DH(450), ETAMinutes: 15, DriverRating: 5.0},
		{ID: "slow", Price: types.DH(180), ETAMinutes: 9, DriverRating: 4.9},
		{ID: "fast-low", Price: types.DH(180), ETAMinutes: 5, DriverRating: 4.1},
		{ID: "fast-high", Price: types.DH(180), ETAMinutes: 5, DriverRating: 4.7},
		{ID: "b-twin", Price: types.DH(250), ETAMinutes: 8, DriverRating: 4.9},
		{ID: "a-twin", Price: types.DH(250), ETAMinutes: 8, DriverRating: 4.9},
	}
	ranked := RankOffers(offers)

	var ids []string
	for _, of := range ranked {
		ids = append(ids, of.ID)
	}
	assert.Equal(t, []string{"fast-high", "fast-low", "slow", "a-twin", "b-twin", "heavy"}, ids)
	assert.Equal(t, "heavy", offers[0].ID, "input must not be reordered")
}

func TestCloneIsDeep(t *testing.T) {
	origin := types.Point{Lat: 1, Lng: 2}
	id := "x"
	o := &Order{Offers: []DriverOffer{{ID: "x", Origin: &origin}}, AcceptedOfferID: &id, Destination: &types.Location{Lat: 3}}
	c := o.Clone()
	c.Offers[0].Origin.Lat = 9
	*c.AcceptedOfferID = "y"
	c.Destination.Lat = 4
	c.Offers = append(c.Offers, DriverOffer{ID: "z"})

	assert.Equal(t, 1.0, o.Offers[0].Origin.Lat)
	assert.Equal(t, "x", *o.AcceptedOfferID)
	assert.Equal(t, 3.0, o.Destination.Lat)
	assert.Len(t, o.Offers, 1)
}
