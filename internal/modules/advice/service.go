// README: Advice service serves cargo handling tips with caching and a per-client hourly budget.
package advice

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"

	"haul/internal/ai"
	"haul/internal/config"
	"haul/internal/observability"
	"haul/internal/types"
)

const (
	cacheKeyPrefix = "advice:tips:"
	limitKeyPrefix = "advice:limit:"
	limitWindow    = time.Hour
)

var ErrEmptyItem = errors.New("item is required")

type Config struct {
	CacheTTL    time.Duration
	HourlyLimit int64
}

func ConfigFrom(c config.AIConfig) Config {
	return Config{CacheTTL: c.CacheTTL(), HourlyLimit: int64(c.HourlyLimit)}
}

type Service struct {
	advisor ai.Advisor
	cache   Cache
	limiter Limiter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(advisor ai.Advisor, cache Cache, limiter Limiter, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Service{
		advisor: advisor,
		cache:   cache,
		limiter: limiter,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Tips returns handling advice for item. Cached answers are free; fresh ones
// count against the client's hourly budget, and a client over budget gets the
// fallback list. Cache and limiter outages never fail the request.
func (s *Service) Tips(ctx context.Context, clientID types.ID, item string) ([]string, error) {
	norm := normalizeItem(item)
	if norm == "" {
		return nil, ErrEmptyItem
	}
	key := cacheKeyPrefix + norm

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("advice cache read failed", "item", norm, "error", err)
	} else if ok {
		var tips []string
		if err := json.Unmarshal(raw, &tips); err == nil && len(tips) > 0 {
			return tips, nil
		}
	}

	if s.cfg.HourlyLimit > 0 {
		allowed, n, err := s.limiter.Allow(ctx, s.limitKey(clientID), s.cfg.HourlyLimit, limitWindow)
		if err != nil {
			s.logger.Warn("advice limiter failed", "client_id", clientID, "error", err)
		} else if !allowed {
			observability.AdviceFallback.Inc()
			s.logger.Info("advice budget exhausted", "client_id", clientID, "count", n)
			return ai.FallbackTips(), nil
		}
	}

	tips := s.advisor.GetTips(ctx, strings.TrimSpace(item))
	if len(tips) == 0 {
		return ai.FallbackTips(), nil
	}
	if !slices.Equal(tips, ai.FallbackTips()) {
		if raw, err := json.Marshal(tips); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
				s.logger.Warn("advice cache write failed", "item", norm, "error", err)
			}
		}
	}
	return tips, nil
}

func (s *Service) limitKey(clientID types.ID) string {
	who := string(clientID)
	if who == "" {
		who = "anonymous"
	}
	return limitKeyPrefix + who + ":" + s.now().UTC().Format("2006010215")
}

// normalizeItem folds case and whitespace so "Old  Sofa" and "old sofa" share a cache entry.
func normalizeItem(item string) string {
	return strings.ToLower(strings.Join(strings.Fields(item), " "))
}
