package fulfiller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMatchWindow is how long after its creation an order stays eligible
// for matching before it is failed as timed out.
const DefaultMatchWindow = 30 * time.Minute

const timeoutReason = "timeout: no confirmation received within window"

// Watcher is the handle for one running watch task. The registry owns it;
// the task itself only holds the cancellation it was given.
type Watcher struct {
	orderID string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Registry tracks at most one live watcher per direct order. All map access
// goes through the registry mutex so a watcher finishing on its own and an
// external dismissal can race harmlessly.
type Registry struct {
	mu       sync.Mutex
	watchers map[string]*Watcher

	bus    *Bus
	store  OrderStore
	logger *zerolog.Logger
	window time.Duration
}

func NewRegistry(bus *Bus, store OrderStore, logger *zerolog.Logger, window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &Registry{
		watchers: make(map[string]*Watcher),
		bus:      bus,
		store:    store,
		logger:   logger,
		window:   window,
	}
}

// Ensure starts a watcher for the order unless one is already registered
// under the same id. Calling it twice for the same order is a no-op.
func (r *Registry) Ensure(order Order) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		orderID: order.ID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.watchers[order.ID]; exists {
		r.mu.Unlock()
		cancel()
		return
	}
	r.watchers[order.ID] = w
	r.mu.Unlock()

	r.logger.Info().
		Str("order_id", order.ID).
		Str("provider", order.Provider).
		Str("amount", order.Amount.String()).
		Msg("watcher created")

	go r.watch(ctx, order, w)
}

// Dismiss cancels and removes the watcher for orderID if one is registered.
// It never blocks on the watcher actually stopping and is a no-op when the
// watcher already resolved itself.
func (r *Registry) Dismiss(orderID string) {
	r.mu.Lock()
	w, ok := r.watchers[orderID]
	if ok {
		delete(r.watchers, orderID)
	}
	r.mu.Unlock()

	if ok {
		w.cancel()
		r.logger.Info().Str("order_id", orderID).Msg("watcher dismissed")
	}
}

// Active reports the number of live watchers.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// Close cancels every watcher and waits for all watch tasks to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	watchers := make([]*Watcher, 0, len(r.watchers))
	for id, w := range r.watchers {
		watchers = append(watchers, w)
		delete(r.watchers, id)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		w.cancel()
	}
	for _, w := range watchers {
		<-w.done
	}
}

// remove unregisters w if it is still the watcher recorded for id. The
// handle comparison keeps a concurrent Dismiss plus self-unregistration
// from touching a replacement watcher.
func (r *Registry) remove(id string, w *Watcher) {
	r.mu.Lock()
	if cur, ok := r.watchers[id]; ok && cur == w {
		delete(r.watchers, id)
	}
	r.mu.Unlock()
}

// watch runs the order's watch loop until it matches, times out or is
// dismissed. It issues at most one status write and exits right after.
func (r *Registry) watch(ctx context.Context, order Order, w *Watcher) {
	defer close(w.done)
	defer w.cancel()
	defer r.remove(order.ID, w)

	deadline := order.CreatedAt.Add(r.window)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		// the order aged out before we ever got to it, e.g. after a restart
		r.logger.Warn().
			Str("order_id", order.ID).
			Time("created_at", order.CreatedAt).
			Msg("order expired before processing")
		r.writeResolution(order.ID, StatusUpdate{
			Status: StatusFailed,
			Reason: "expired before processing",
		})
		return
	}

	sub := r.bus.Subscribe()
	defer sub.Close()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// dismissed externally; whoever dismissed owns the transition
			return
		case <-timer.C:
			r.logger.Info().
				Str("order_id", order.ID).
				Msg("watcher timed out")
			r.writeResolution(order.ID, StatusUpdate{
				Status: StatusFailed,
				Reason: timeoutReason,
			})
			return
		case ev := <-sub.C:
			if !Matches(order, ev) {
				continue
			}
			r.logger.Info().
				Str("order_id", order.ID).
				Str("sender_phone", ev.SenderPhone).
				Str("amount", ev.Amount.String()).
				Msg("match found")
			r.writeResolution(order.ID, StatusUpdate{
				Status:        StatusAwaitingConfirmation,
				AmountMatched: ev.Amount,
				SenderPhone:   ev.SenderPhone,
				Message:       confirmationMessage(order),
				ConfirmedAt:   time.Now(),
			})
			return
		}
	}
}

func (r *Registry) writeResolution(orderID string, update StatusUpdate) {
	if err := r.store.UpdateStatus(orderID, update); err != nil {
		r.logger.Error().Err(err).
			Str("order_id", orderID).
			Str("status", update.Status).
			Msg("failed to write order resolution")
	}
}

func confirmationMessage(order Order) string {
	return fmt.Sprintf("تم استلام رصيد %s من %s", order.Amount.String(), order.UserPhone)
}
