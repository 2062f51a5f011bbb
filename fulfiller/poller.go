package fulfiller

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Poller synthesizes the pending-order change feed by polling the store and
// diffing snapshots. Orders that appear are emitted as Added, orders that
// vanish from the pending set as Removed; the pending filter means a status
// change always shows up as a disappearance.
type Poller struct {
	store    *Store
	interval time.Duration
	logger   *zerolog.Logger
	changes  chan OrderChange
	known    map[string]struct{}
}

func NewPoller(store *Store, interval time.Duration, logger *zerolog.Logger) *Poller {
	return &Poller{
		store:    store,
		interval: interval,
		logger:   logger,
		changes:  make(chan OrderChange, 64),
		known:    make(map[string]struct{}),
	}
}

// Changes is the feed consumed by intake.
func (p *Poller) Changes() <-chan OrderChange {
	return p.changes
}

// Run polls until the context is cancelled, then closes the feed.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.changes)

	// there's no do while loop in go, so poll once before the first tick
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	orders, err := p.store.PendingOrders()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to poll pending orders")
		return
	}

	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		seen[o.ID] = struct{}{}
		if _, ok := p.known[o.ID]; ok {
			continue
		}
		p.known[o.ID] = struct{}{}
		if !p.emit(ctx, OrderChange{Type: ChangeAdded, Order: o}) {
			return
		}
	}

	for id := range p.known {
		if _, ok := seen[id]; ok {
			continue
		}
		delete(p.known, id)
		if !p.emit(ctx, OrderChange{Type: ChangeRemoved, Order: Order{ID: id}}) {
			return
		}
	}
}

func (p *Poller) emit(ctx context.Context, change OrderChange) bool {
	select {
	case p.changes <- change:
		p.logger.Debug().
			Str("order_id", change.Order.ID).
			Str("change", change.Type.String()).
			Msg("order change emitted")
		return true
	case <-ctx.Done():
		return false
	}
}
