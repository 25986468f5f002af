// README: Entry point; loads config, wires stores, brokers and services, then serves HTTP until signalled.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"haul/internal/ai"
	"haul/internal/config"
	"haul/internal/events"
	httpapi "haul/internal/http"
	"haul/internal/infra"
	"haul/internal/logging"
	"haul/internal/maps"
	"haul/internal/modules/advice"
	"haul/internal/modules/location"
	"haul/internal/modules/matching"
	"haul/internal/modules/order"
	"haul/internal/modules/pricing"
	"haul/internal/modules/tracking"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("haul-api stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if path := os.Getenv("HAUL_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var (
		orderStore order.Store = order.NewMemoryStore()
		rateStore  pricing.RateStore
	)
	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		orderStore = order.NewPGStore(db)
		rateStore = pricing.NewStore(db)
		logger.Info("postgres stores enabled")
	}

	var (
		driverStore   location.Store = location.NewMemoryStore()
		dispatchStore matching.Store = matching.NewMemoryStore()
		adviceCache   advice.Cache   = advice.NewMemoryCache()
		adviceLimiter advice.Limiter = advice.NewMemoryLimiter()
		rdb           *redis.Client
	)
	if cfg.Redis.Addr != "" {
		var err error
		rdb, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		driverStore = location.NewRedisStore(rdb)
		dispatchStore = matching.NewRedisStore(rdb)
		adviceCache = advice.NewRedisCache(rdb)
		adviceLimiter = advice.NewRedisLimiter(rdb)
		logger.Info("redis stores enabled", "addr", cfg.Redis.Addr)
	}

	geo, err := maps.NewGeocoder(cfg.Maps.APIKey, logger)
	if err != nil {
		logger.Warn("maps client unavailable, using offline geocoder", "error", err)
		geo = maps.Offline()
	}
	geo.WithLanguage(cfg.Maps.Language)

	var advisor ai.Advisor = ai.Static{}
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiAdvisor(ctx, cfg.AI.GeminiKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("gemini unavailable, serving fallback tips", "error", err)
		} else {
			defer gemini.Close()
			advisor = gemini.WithLogger(logger)
		}
	}

	bus := events.NewBus(256)
	defer bus.Close()
	if err := forwardEvents(ctx, cfg, bus, logger); err != nil {
		return err
	}

	pricingSvc := pricing.NewService(rateStore).WithLogger(logger)
	locationSvc := location.NewService(driverStore).WithLogger(logger)

	orderSvc := order.NewService(orderStore, pricingSvc).
		WithGeo(geo).
		WithPublisher(bus).
		WithConfig(order.Config{
			SearchTimeout:   cfg.Orders.SearchTimeout(),
			PickupTimeout:   cfg.Orders.PickupTimeout(),
			MonitorInterval: cfg.Orders.MonitorInterval(),
		}).
		WithLogger(logger)

	var strategy matching.Strategy = matching.NewCatalog()
	if cfg.Matching.Strategy == "nearby" {
		strategy = matching.NewNearby(locationSvc, pricingSvc, cfg.Matching.RadiusKm)
	}
	generator := matching.NewGenerator(strategy, cfg.Matching).WithLogger(logger)
	matchingSvc := matching.NewService(dispatchStore, orderSvc, generator).WithLogger(logger)
	defer matchingSvc.Close()

	simulator := tracking.NewSimulator(orderSvc, tracking.ConfigFrom(cfg.Tracking)).WithLogger(logger)
	defer simulator.Close()

	orderSvc.WithDispatcher(matchingSvc).WithTracker(simulator)

	adviceSvc := advice.NewService(advisor, adviceCache, adviceLimiter, advice.ConfigFrom(cfg.AI)).WithLogger(logger)

	go orderSvc.RunTimeoutMonitor(ctx)

	server := httpapi.NewServer(cfg.HTTP.Addr, time.Duration(cfg.HTTP.ShutdownSeconds)*time.Second, httpapi.ServerDeps{
		Order:    orderSvc,
		Location: locationSvc,
		Advice:   adviceSvc,
		Dispatch: matchingSvc,
		Geo:      geo,
		Events:   bus,
		Logger:   logger,
	})
	return server.Run(ctx)
}

// forwardEvents mirrors every bus event to the configured brokers.
func forwardEvents(ctx context.Context, cfg config.Config, bus *events.Bus, logger *slog.Logger) error {
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		ch, unsubscribe := bus.Subscribe(nil)
		go func() {
			defer unsubscribe()
			defer sink.Close()
			events.Forward(ctx, ch, sink, logger.With("sink", "kafka"))
		}()
		logger.Info("kafka forwarding enabled", "topic", cfg.Kafka.Topic)
	}
	if cfg.AMQP.URL != "" {
		sink, err := events.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		ch, unsubscribe := bus.Subscribe(nil)
		go func() {
			defer unsubscribe()
			defer sink.Close()
			events.Forward(ctx, ch, sink, logger.With("sink", "amqp"))
		}()
		logger.Info("amqp forwarding enabled", "exchange", cfg.AMQP.Exchange)
	}
	return nil
}
