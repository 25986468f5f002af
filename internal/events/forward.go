// README: Forwards bus events to an external broker sink until the context ends.
package events

import (
	"context"
	"log/slog"
	"time"
)

const sendTimeout = 5 * time.Second

// Forward drains events into sink. Send failures are logged and skipped.
func Forward(ctx context.Context, events <-chan Event, sink Sink, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := sink.Send(sendCtx, e); err != nil {
				logger.Warn("event forward failed", "type", e.Type, "order_id", e.OrderID, "error", err)
			}
			cancel()
		}
	}
}
