// README: Expiry of orders stuck in search or waiting for pickup.
package order

import (
	"context"
	"time"

	"haul/internal/types"
)

const (
	ReasonSearchTimeout = "search_timeout"
	ReasonPickupTimeout = "pickup_timeout"
)

// ExpireStale cancels orders whose search or pickup window ended before now
// and returns how many were cancelled.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	var statuses []Status
	if s.cfg.SearchTimeout > 0 {
		statuses = append(statuses, StatusSearching, StatusNegotiating)
	}
	if s.cfg.PickupTimeout > 0 {
		statuses = append(statuses, StatusAccepted)
	}
	if len(statuses) == 0 {
		return 0, nil
	}
	candidates, err := s.store.ListByStatus(ctx, statuses...)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range candidates {
		reason, stale := s.staleReason(o, now)
		if !stale {
			continue
		}
		ok, err := s.expire(ctx, o.ID, reason, now)
		if err != nil {
			s.logger.Warn("expire order failed", "order_id", o.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) staleReason(o *Order, now time.Time) (string, bool) {
	switch {
	case o.Status.OpenForOffers() && s.cfg.SearchTimeout > 0 && o.BroadcastAt != nil:
		return ReasonSearchTimeout, now.Sub(*o.BroadcastAt) >= s.cfg.SearchTimeout
	case o.Status == StatusAccepted && s.cfg.PickupTimeout > 0 && o.AcceptedAt != nil:
		return ReasonPickupTimeout, now.Sub(*o.AcceptedAt) >= s.cfg.PickupTimeout
	}
	return "", false
}

// expire re-checks staleness under the order lock so an order accepted or
// picked up in the meantime is left alone.
func (s *Service) expire(ctx context.Context, id types.ID, reason string, now time.Time) (bool, error) {
	_, err := s.mutate(ctx, id, change{actorType: ActorSystem, reason: reason}, func(o *Order) error {
		if r, stale := s.staleReason(o, now); !stale || r != reason {
			return errNoop
		}
		at := s.now()
		o.CancelledAt = &at
		o.CancelReason = &reason
		o.Status = StatusCancelled
		return nil
	}, s.publishOrder)
	if err == errNoop {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("order expired", "order_id", id, "reason", reason)
	return true, nil
}

func (s *Service) RunTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx, s.now()); err != nil {
				s.logger.Error("timeout monitor", "error", err)
			}
		}
	}
}
