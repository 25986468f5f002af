// README: Generator turns a strategy's candidates into a bounded, paced offer stream.
package matching

import (
	"context"
	"log/slog"
	"time"

	"haul/internal/config"
	"haul/internal/modules/order"
)

// Strategy produces the offers drivers would make for an order.
type Strategy interface {
	Candidates(ctx context.Context, o order.Order) ([]order.DriverOffer, error)
}

type Generator struct {
	strategy   Strategy
	window     time.Duration
	firstDelay time.Duration
	interval   time.Duration
	maxOffers  int
	logger     *slog.Logger
}

func NewGenerator(strategy Strategy, cfg config.MatchingConfig) *Generator {
	g := &Generator{
		strategy:   strategy,
		window:     cfg.Window(),
		firstDelay: cfg.FirstOfferDelay(),
		interval:   cfg.Interval(),
		maxOffers:  cfg.MaxOffers,
		logger:     slog.Default(),
	}
	if g.window <= 0 || g.window >= maxWindow {
		g.window = defaultWindow
	}
	if g.firstDelay < 0 {
		g.firstDelay = defaultFirstDelay
	}
	if g.interval <= 0 {
		g.interval = defaultInterval
	}
	if g.maxOffers <= 0 {
		g.maxOffers = defaultMaxOffers
	}
	return g
}

func (g *Generator) WithLogger(logger *slog.Logger) *Generator {
	g.logger = logger
	return g
}

// Generate streams offers for o: the first after the initial delay, then one
// per interval. The channel closes when the window ends, maxOffers were sent,
// the strategy has nothing left or ctx is done. The strategy is consulted
// only once the first offer is due, and every send waits for the caller.
func (g *Generator) Generate(ctx context.Context, o order.Order) <-chan order.DriverOffer {
	out := make(chan order.DriverOffer)
	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(ctx, g.window)
		defer cancel()

		timer := time.NewTimer(g.firstDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		candidates, err := g.strategy.Candidates(ctx, o)
		if err != nil {
			g.logger.Warn("offer candidates failed", "order_id", o.ID, "error", err)
			return
		}
		if len(candidates) > g.maxOffers {
			candidates = candidates[:g.maxOffers]
		}

		for i, of := range candidates {
			if i > 0 {
				timer.Reset(g.interval)
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
			select {
			case out <- of:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
