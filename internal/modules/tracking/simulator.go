// README: Tracking simulator moves the assigned driver toward pickup, then destination, one tick at a time.
package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"haul/internal/config"
	"haul/internal/modules/order"
	"haul/internal/observability"
	"haul/internal/types"
)

const (
	defaultInterval     = 4 * time.Second
	defaultETAStep      = 1
	defaultStepFraction = 0.1
	// startOffset places a driver without a known origin next to the pickup.
	startOffset = 0.005
)

// Reporter accepts position updates; order.Service implements it. An
// ErrInvalidState or ErrNotFound answer ends the simulation, and an
// ErrStalePosition answer makes it reload the order and redo the tick.
type Reporter interface {
	ReportPosition(ctx context.Context, id types.ID, phase order.Status, pos types.Location, etaMinutes int) (*order.Order, error)
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type Config struct {
	Interval     time.Duration
	ETAStep      int
	StepFraction float64
}

func ConfigFrom(c config.TrackingConfig) Config {
	return Config{Interval: c.Interval(), ETAStep: c.ETAStep, StepFraction: c.StepFraction}
}

// ticker is the part of time.Ticker the simulation uses.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// Handle controls one running simulation.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop ends the simulation and waits for its last report to finish.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type Simulator struct {
	reporter  Reporter
	cfg       Config
	logger    *slog.Logger
	newTicker func(time.Duration) ticker

	mu      sync.Mutex
	handles map[types.ID]*Handle
	closed  bool
	wg      sync.WaitGroup
}

func NewSimulator(reporter Reporter, cfg Config) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ETAStep <= 0 {
		cfg.ETAStep = defaultETAStep
	}
	if cfg.StepFraction <= 0 || cfg.StepFraction > 1 {
		cfg.StepFraction = defaultStepFraction
	}
	return &Simulator{
		reporter:  reporter,
		cfg:       cfg,
		logger:    slog.Default(),
		newTicker: func(d time.Duration) ticker { return realTicker{time.NewTicker(d)} },
		handles:   make(map[types.ID]*Handle),
	}
}

func (s *Simulator) WithLogger(logger *slog.Logger) *Simulator {
	s.logger = logger
	return s
}

// Track starts a simulation for a freshly accepted order from the accepted
// offer's origin, or from just beside the pickup when the offer has none.
func (s *Simulator) Track(_ context.Context, o order.Order) {
	start := types.Point{Lat: o.Pickup.Lat + startOffset, Lng: o.Pickup.Lng + startOffset}
	if offer, ok := o.AcceptedOffer(); ok && offer.Origin != nil {
		start = *offer.Origin
	}
	s.Start(o, start)
}

// Start runs a simulation for o beginning at initial. A simulation already
// running for the same order is replaced. After Close it returns a handle
// that is already done.
func (s *Simulator) Start(o order.Order, initial types.Point) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(h.done)
		return h
	}
	prev := s.handles[o.ID]
	s.handles[o.ID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	observability.ActiveTracks.Inc()
	s.logger.Info("tracking started", "order_id", o.ID, "lat", initial.Lat, "lng", initial.Lng)
	go s.run(ctx, h, o, initial)
	return h
}

func (s *Simulator) run(ctx context.Context, h *Handle, o order.Order, pos types.Point) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.handles[o.ID] == h {
			delete(s.handles, o.ID)
		}
		s.mu.Unlock()
		observability.ActiveTracks.Dec()
		close(h.done)
	}()

	t := s.newTicker(s.cfg.Interval)
	defer t.Stop()

	status := o.Status
	eta := o.ETAMinutes
	if eta <= 0 {
		eta = 1
	}
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("tracking stopped", "order_id", o.ID, "ticks", ticks)
			return
		case <-t.C():
		}

		next, nextETA := s.step(o, status, pos, eta)
		err := s.report(ctx, o.ID, status, next, nextETA)
		if errors.Is(err, order.ErrStalePosition) {
			// The engine moved the order on since the last tick; take its
			// phase and ETA and redo this tick from there.
			var cur *order.Order
			if cur, err = s.reporter.Get(ctx, o.ID); err == nil {
				status, eta = cur.Status, max(1, cur.ETAMinutes)
				next, nextETA = s.step(o, status, pos, eta)
				err = s.report(ctx, o.ID, status, next, nextETA)
			}
		}
		if err != nil {
			if errors.Is(err, order.ErrInvalidState) || errors.Is(err, order.ErrNotFound) || ctx.Err() != nil {
				s.logger.Info("tracking finished", "order_id", o.ID, "ticks", ticks, "reason", err)
				return
			}
			s.logger.Warn("report position failed", "order_id", o.ID, "error", err)
			continue
		}
		pos, eta = next, nextETA
		ticks++
	}
}

// step moves pos toward the current phase's target and counts eta down.
func (s *Simulator) step(o order.Order, status order.Status, pos types.Point, eta int) (types.Point, int) {
	target := o.Pickup.Point()
	if status == order.StatusPickedUp && o.Destination != nil {
		target = o.Destination.Point()
	}
	return moveToward(pos, target, s.cfg.StepFraction), max(1, eta-s.cfg.ETAStep)
}

func (s *Simulator) report(ctx context.Context, id types.ID, phase order.Status, pos types.Point, eta int) error {
	_, err := s.reporter.ReportPosition(ctx, id, phase, types.Location{Lat: pos.Lat, Lng: pos.Lng}, eta)
	return err
}

// Active reports how many simulations are running.
func (s *Simulator) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close stops every simulation and waits for them to exit.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	running := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		running = append(running, h)
	}
	s.mu.Unlock()
	for _, h := range running {
		h.cancel()
	}
	s.wg.Wait()
}

// moveToward covers fraction of the remaining straight line to target.
func moveToward(from, to types.Point, fraction float64) types.Point {
	return types.Point{
		Lat: from.Lat + (to.Lat-from.Lat)*fraction,
		Lng: from.Lng + (to.Lng-from.Lng)*fraction,
	}
}
