// README: Config loader with env defaults for HTTP, stores, brokers, matching and tracking.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

type DBConfig struct {
	// DSN selects the Postgres stores. Empty keeps orders in memory.
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	// Addr enables the Redis driver pool, dispatch registry and advice cache.
	Addr string `yaml:"addr"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type MatchingConfig struct {
	// Strategy is "catalog" or "nearby".
	Strategy          string  `yaml:"strategy"`
	WindowSeconds     int     `yaml:"window_seconds"`
	FirstOfferDelayMs int     `yaml:"first_offer_delay_ms"`
	IntervalMs        int     `yaml:"interval_ms"`
	MaxOffers         int     `yaml:"max_offers"`
	RadiusKm          float64 `yaml:"radius_km"`
}

type TrackingConfig struct {
	IntervalMs   int     `yaml:"interval_ms"`
	ETAStep      int     `yaml:"eta_step"`
	StepFraction float64 `yaml:"step_fraction"`
}

type OrderConfig struct {
	SearchTimeoutSeconds int `yaml:"search_timeout_seconds"`
	PickupTimeoutSeconds int `yaml:"pickup_timeout_seconds"`
	MonitorSeconds       int `yaml:"monitor_seconds"`
}

type AIConfig struct {
	GeminiKey     string `yaml:"gemini_key"`
	Model         string `yaml:"model"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
	HourlyLimit   int    `yaml:"hourly_limit"`
}

type MapsConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	DB       DBConfig       `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Matching MatchingConfig `yaml:"matching"`
	Tracking TrackingConfig `yaml:"tracking"`
	Orders   OrderConfig    `yaml:"orders"`
	AI       AIConfig       `yaml:"ai"`
	Maps     MapsConfig     `yaml:"maps"`
	Log      LogConfig      `yaml:"log"`
}

func Defaults() Config {
	return Config{
		HTTP:  HTTPConfig{Addr: ":8080", ShutdownSeconds: 10},
		Kafka: KafkaConfig{Topic: "haul.order-events"},
		AMQP:  AMQPConfig{Exchange: "haul.orders"},
		Matching: MatchingConfig{
			Strategy:          "catalog",
			WindowSeconds:     20,
			FirstOfferDelayMs: 3000,
			IntervalMs:        1500,
			MaxOffers:         5,
			RadiusKm:          10,
		},
		Tracking: TrackingConfig{IntervalMs: 4000, ETAStep: 1, StepFraction: 0.1},
		Orders:   OrderConfig{SearchTimeoutSeconds: 600, PickupTimeoutSeconds: 3600, MonitorSeconds: 30},
		AI:       AIConfig{Model: "gemini-2.0-flash", CacheTTLHours: 24, HourlyLimit: 30},
		Maps:     MapsConfig{Language: "fr"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults and HAUL_* environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML file over the defaults; environment variables still
// take precedence.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Matching.WindowSeconds <= 0 || c.Matching.WindowSeconds >= 30 {
		return errors.Errorf("matching window must be within 1..29 seconds, got %d", c.Matching.WindowSeconds)
	}
	switch c.Matching.Strategy {
	case "catalog", "nearby":
	default:
		return errors.Errorf("unknown matching strategy %q", c.Matching.Strategy)
	}
	if c.Tracking.IntervalMs <= 0 {
		return errors.New("tracking interval must be positive")
	}
	if c.Tracking.StepFraction <= 0 || c.Tracking.StepFraction > 1 {
		return errors.Errorf("tracking step fraction must be within (0,1], got %v", c.Tracking.StepFraction)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = envOrDefault("HAUL_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownSeconds = envOrDefaultInt("HAUL_HTTP_SHUTDOWN_SECONDS", cfg.HTTP.ShutdownSeconds)
	cfg.DB.DSN = envOrDefault("HAUL_DB_DSN", cfg.DB.DSN)
	cfg.Redis.Addr = envOrDefault("HAUL_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Kafka.Brokers = envOrDefaultList("HAUL_KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = envOrDefault("HAUL_KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.AMQP.URL = envOrDefault("HAUL_AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = envOrDefault("HAUL_AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.Matching.Strategy = envOrDefault("HAUL_MATCH_STRATEGY", cfg.Matching.Strategy)
	cfg.Matching.WindowSeconds = envOrDefaultInt("HAUL_MATCH_WINDOW_SECONDS", cfg.Matching.WindowSeconds)
	cfg.Matching.FirstOfferDelayMs = envOrDefaultInt("HAUL_MATCH_FIRST_DELAY_MS", cfg.Matching.FirstOfferDelayMs)
	cfg.Matching.IntervalMs = envOrDefaultInt("HAUL_MATCH_INTERVAL_MS", cfg.Matching.IntervalMs)
	cfg.Matching.MaxOffers = envOrDefaultInt("HAUL_MATCH_MAX_OFFERS", cfg.Matching.MaxOffers)
	cfg.Matching.RadiusKm = envOrDefaultFloat("HAUL_MATCH_RADIUS_KM", cfg.Matching.RadiusKm)
	cfg.Tracking.IntervalMs = envOrDefaultInt("HAUL_TRACK_INTERVAL_MS", cfg.Tracking.IntervalMs)
	cfg.Tracking.ETAStep = envOrDefaultInt("HAUL_TRACK_ETA_STEP", cfg.Tracking.ETAStep)
	cfg.Tracking.StepFraction = envOrDefaultFloat("HAUL_TRACK_STEP_FRACTION", cfg.Tracking.StepFraction)
	cfg.Orders.SearchTimeoutSeconds = envOrDefaultInt("HAUL_ORDER_SEARCH_TIMEOUT_SECONDS", cfg.Orders.SearchTimeoutSeconds)
	cfg.Orders.PickupTimeoutSeconds = envOrDefaultInt("HAUL_ORDER_PICKUP_TIMEOUT_SECONDS", cfg.Orders.PickupTimeoutSeconds)
	cfg.Orders.MonitorSeconds = envOrDefaultInt("HAUL_ORDER_MONITOR_SECONDS", cfg.Orders.MonitorSeconds)
	cfg.AI.GeminiKey = envOrDefault("GEMINI_API_KEY", cfg.AI.GeminiKey)
	cfg.AI.Model = envOrDefault("HAUL_AI_MODEL", cfg.AI.Model)
	cfg.AI.CacheTTLHours = envOrDefaultInt("HAUL_AI_CACHE_TTL_HOURS", cfg.AI.CacheTTLHours)
	cfg.AI.HourlyLimit = envOrDefaultInt("HAUL_AI_HOURLY_LIMIT", cfg.AI.HourlyLimit)
	cfg.Maps.APIKey = envOrDefault("GOOGLE_MAPS_API_KEY", cfg.Maps.APIKey)
	cfg.Maps.Language = envOrDefault("HAUL_MAPS_LANGUAGE", cfg.Maps.Language)
	cfg.Log.Level = envOrDefault("HAUL_LOG_LEVEL", cfg.Log.Level)
}

func (m MatchingConfig) Window() time.Duration {
	return time.Duration(m.WindowSeconds) * time.Second
}

func (m MatchingConfig) FirstOfferDelay() time.Duration {
	return time.Duration(m.FirstOfferDelayMs) * time.Millisecond
}

func (m MatchingConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

func (t TrackingConfig) Interval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

func (o OrderConfig) SearchTimeout() time.Duration {
	return time.Duration(o.SearchTimeoutSeconds) * time.Second
}

func (o OrderConfig) PickupTimeout() time.Duration {
	return time.Duration(o.PickupTimeoutSeconds) * time.Second
}

func (o OrderConfig) MonitorInterval() time.Duration {
	return time.Duration(o.MonitorSeconds) * time.Second
}

func (a AIConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLHours) * time.Hour
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
