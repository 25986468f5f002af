package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"haul/internal/ai"
	"haul/internal/config"
	"haul/internal/events"
	"haul/internal/logging"
	"haul/internal/maps"
	"haul/internal/modules/matching"
	"haul/internal/modules/order"
	"haul/internal/modules/pricing"
	"haul/internal/modules/tracking"
	"haul/internal/types"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger(os.Getenv("HAUL_LOG_LEVEL"))

	bus := events.NewBus(64)
	defer bus.Close()
	feed, unsubscribe := bus.Subscribe(nil)
	defer unsubscribe()
	go func() {
		for e := range feed {
			fmt.Printf("  event %-17s status=%s\n", e.Type, e.Status)
		}
	}()

	orders := order.NewService(order.NewMemoryStore(), pricing.NewService(nil)).
		WithGeo(maps.Offline()).
		WithPublisher(bus).
		WithLogger(logger)

	gen := matching.NewGenerator(matching.NewCatalog(), config.MatchingConfig{
		Strategy:          "catalog",
		WindowSeconds:     5,
		FirstOfferDelayMs: 300,
		IntervalMs:        300,
		MaxOffers:         3,
	}).WithLogger(logger)
	dispatcher := matching.NewService(matching.NewMemoryStore(), orders, gen).WithLogger(logger)
	defer dispatcher.Close()

	sim := tracking.NewSimulator(orders, tracking.Config{
		Interval:     500 * time.Millisecond,
		ETAStep:      1,
		StepFraction: 0.2,
	}).WithLogger(logger)
	defer sim.Close()
	orders.WithDispatcher(dispatcher).WithTracker(sim)

	cargo := order.Cargo{
		ItemType:    "Sofa",
		Category:    order.CategoryFurniture,
		Weight:      50,
		WeightUnit:  order.UnitKg,
		VehicleType: types.VehicleVan,
	}
	o, err := orders.CreateRequest(ctx, order.CreateCommand{
		ClientID: "demo-client",
		Cargo:    cargo,
		Pickup:   types.Location{Lat: 33.5731, Lng: -7.5898},
	})
	if err != nil {
		log.Fatalf("create request: %v", err)
	}
	fmt.Printf("Order %s created at %q, suggested %s\n", o.ID, o.Pickup.Address, o.SuggestedPrice)

	if err := orders.Broadcast(ctx, order.BroadcastCommand{
		OrderID:     o.ID,
		Destination: &types.Location{Lat: 34.0209, Lng: -6.8416, Address: "Rabat"},
	}); err != nil {
		log.Fatalf("broadcast: %v", err)
	}

	offers, err := waitForOffers(ctx, orders, o.ID, 2, 10*time.Second)
	if err != nil {
		log.Fatalf("waiting for offers: %v", err)
	}
	fmt.Println("Offers, cheapest first:")
	for _, off := range offers {
		fmt.Printf("  %-10s %s, %d min, rating %.1f\n", off.DriverName, off.Price, off.ETAMinutes, off.DriverRating)
	}

	chosen := offers[len(offers)-1]
	if err := orders.AcceptOffer(ctx, order.AcceptCommand{OrderID: o.ID, OfferID: chosen.ID}); err != nil {
		log.Fatalf("accept: %v", err)
	}
	fmt.Printf("Accepted %s from %s\n", chosen.Price, chosen.DriverName)

	time.Sleep(1600 * time.Millisecond)
	for range 2 {
		status, err := orders.AdvanceDelivery(ctx, o.ID)
		if err != nil {
			log.Fatalf("advance: %v", err)
		}
		fmt.Printf("Delivery advanced to %s\n", status)
		time.Sleep(1100 * time.Millisecond)
	}

	final, err := orders.Get(ctx, o.ID)
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	fmt.Printf("Final status %s with %d offers on record\n", final.Status, len(final.Offers))

	var advisor ai.Advisor = ai.Static{}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := ai.NewGeminiAdvisor(ctx, key, "gemini-2.0-flash")
		if err != nil {
			log.Fatalf("gemini: %v", err)
		}
		defer gemini.Close()
		advisor = gemini.WithLogger(logger)
	}
	fmt.Printf("Tips for %s:\n", cargo.ItemType)
	for _, tip := range advisor.GetTips(ctx, cargo.ItemType) {
		fmt.Printf("  - %s\n", tip)
	}
}

func waitForOffers(ctx context.Context, orders *order.Service, id types.ID, n int, timeout time.Duration) ([]order.DriverOffer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		offers, err := orders.RankedOffers(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(offers) >= n {
			return offers, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}
