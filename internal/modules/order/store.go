// README: Order persistence contract and the in-memory store.
package order

import (
	"context"
	"slices"
	"sync"

	"haul/internal/types"
)

// Store persists orders keyed by id. Update is a compare-and-swap on
// StatusVersion and reports false when the stored version moved on.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Update(ctx context.Context, o *Order, expectedVersion int) (bool, error)
	AppendTransition(ctx context.Context, t *Transition) error
	Transitions(ctx context.Context, id types.ID) ([]Transition, error)
	HasActiveByClient(ctx context.Context, clientID types.ID) (bool, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Order, error)
	Archive(ctx context.Context, id types.ID) error
}

type MemoryStore struct {
	mu          sync.RWMutex
	orders      map[types.ID]*Order
	archived    map[types.ID]*Order
	transitions map[types.ID][]Transition
	nextID      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[types.ID]*Order),
		archived:    make(map[types.ID]*Order),
		transitions: make(map[types.ID][]Transition),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.orders[id]; ok {
		return o.Clone(), nil
	}
	if o, ok := s.archived[id]; ok {
		return o.Clone(), nil
	}
	return nil, ErrOrderNotFound
}

func (s *MemoryStore) Update(_ context.Context, o *Order, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		if _, archived := s.archived[o.ID]; archived {
			return false, nil
		}
		return false, ErrOrderNotFound
	}
	if cur.StatusVersion != expectedVersion {
		return false, nil
	}
	s.orders[o.ID] = o.Clone()
	return true, nil
}

func (s *MemoryStore) AppendTransition(_ context.Context, t *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec := *t
	rec.ID = s.nextID
	s.transitions[t.OrderID] = append(s.transitions[t.OrderID], rec)
	return nil
}

func (s *MemoryStore) Transitions(_ context.Context, id types.ID) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transitions[id]), nil
}

func (s *MemoryStore) HasActiveByClient(_ context.Context, clientID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ClientID == clientID && o.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// ListByStatus returns non-archived orders, oldest first.
func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...Status) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if slices.Contains(statuses, o.Status) {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) Archive(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		if _, archived := s.archived[id]; archived {
			return nil
		}
		return ErrOrderNotFound
	}
	delete(s.orders, id)
	s.archived[id] = o
	return nil
}

func compareIDs(a, b types.ID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
