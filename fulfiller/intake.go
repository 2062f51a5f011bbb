package fulfiller

import (
	"context"

	"github.com/rs/zerolog"
)

// Intake routes order change feed entries to the watcher registry or the
// dial queue. It makes no business decision beyond routing and dismissal.
type Intake struct {
	registry *Registry
	queue    *DialQueue
	logger   *zerolog.Logger
}

func NewIntake(registry *Registry, queue *DialQueue, logger *zerolog.Logger) *Intake {
	return &Intake{
		registry: registry,
		queue:    queue,
		logger:   logger,
	}
}

// Run consumes the change feed until the context is cancelled or the feed
// channel closes.
func (in *Intake) Run(ctx context.Context, changes <-chan OrderChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			in.Apply(change)
		}
	}
}

// Apply routes a single change feed entry.
func (in *Intake) Apply(change OrderChange) {
	order := change.Order
	switch change.Type {
	case ChangeAdded:
		switch order.TransferType {
		case TransferDirect:
			in.registry.Ensure(order)
		case TransferCard:
			in.queue.Enqueue(order)
		default:
			in.logger.Debug().
				Str("order_id", order.ID).
				Str("transfer_type", order.TransferType).
				Msg("ignoring order with unsupported transfer type")
		}
	case ChangeModified:
		if order.Status != StatusPending {
			in.registry.Dismiss(order.ID)
		}
	case ChangeRemoved:
		in.registry.Dismiss(order.ID)
	}
}
