// README: Matching service runs one offer generation per broadcast order and feeds the engine.
package matching

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"

	"haul/internal/modules/order"
	"haul/internal/observability"
	"haul/internal/types"
)

// OfferSink receives generated offers; order.Service implements it.
type OfferSink interface {
	ReceiveOffer(ctx context.Context, id types.ID, offer order.DriverOffer) (order.DriverOffer, error)
}

type Service struct {
	store  Store
	sink   OfferSink
	gen    *Generator
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running map[types.ID]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewService(store Store, sink OfferSink, gen *Generator) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:   store,
		sink:    sink,
		gen:     gen,
		logger:  slog.Default(),
		now:     time.Now,
		running: make(map[types.ID]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Dispatch starts offer generation for a broadcast order. A second dispatch
// of the same order is ignored.
func (s *Service) Dispatch(ctx context.Context, o order.Order) {
	first, err := s.store.MarkDispatched(ctx, o.ID, s.now())
	if err != nil {
		// Without the registry the local running set still prevents duplicates.
		s.logger.Warn("dispatch registry unavailable", "order_id", o.ID, "error", err)
		first = true
	}
	if !first {
		s.logger.Debug("order already dispatched", "order_id", o.ID)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.running[o.ID]; ok {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.running[o.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("offer generation started", "order_id", o.ID)
	go s.run(runCtx, o)
}

func (s *Service) run(ctx context.Context, o order.Order) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.running[o.ID]; ok {
			cancel()
			delete(s.running, o.ID)
		}
		s.mu.Unlock()
	}()

	sent := 0
	for of := range s.gen.Generate(ctx, o) {
		if _, err := s.sink.ReceiveOffer(ctx, o.ID, of); err != nil {
			if errors.Is(err, order.ErrInvalidState) || errors.Is(err, order.ErrNotFound) {
				// The order moved on; this and any further offers are late.
				observability.OffersDropped.Inc()
				s.logger.Debug("late offer dropped", "order_id", o.ID, "driver", of.DriverName)
				return
			}
			s.logger.Warn("offer rejected", "order_id", o.ID, "driver", of.DriverName, "error", err)
			continue
		}
		sent++
		if of.DriverID != "" {
			if err := s.store.RecordNotified(ctx, o.ID, of.DriverID); err != nil {
				s.logger.Warn("record notified driver", "order_id", o.ID, "error", err)
			}
		}
	}
	s.logger.Info("offer generation finished", "order_id", o.ID, "offers", sent)
}

// Record is what the registry knows about an order's offer generation.
type Record struct {
	OrderID         types.ID   `json:"order_id"`
	Dispatched      bool       `json:"dispatched"`
	DispatchedAt    *time.Time `json:"dispatched_at,omitempty"`
	NotifiedDrivers []types.ID `json:"notified_drivers"`
}

// Record returns when the order was dispatched and which drivers were asked
// to bid, sorted by id.
func (s *Service) Record(ctx context.Context, orderID types.ID) (Record, error) {
	rec := Record{OrderID: orderID, NotifiedDrivers: []types.ID{}}
	at, ok, err := s.store.DispatchedAt(ctx, orderID)
	if err != nil {
		return rec, err
	}
	if ok {
		rec.Dispatched = true
		rec.DispatchedAt = &at
	}
	drivers, err := s.store.Notified(ctx, orderID)
	if err != nil {
		return rec, err
	}
	if len(drivers) > 0 {
		slices.Sort(drivers)
		rec.NotifiedDrivers = drivers
	}
	return rec, nil
}

// Running reports how many generations are in flight.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Close stops all generations and waits for them to return.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
