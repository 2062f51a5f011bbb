package fulfiller

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DialSurface performs one outbound dial session. StartDial reports whether
// the dial was accepted; the session's outcome arrives later through
// HandleResult on the queue.
type DialSurface interface {
	StartDial(code, providerHint string) bool
}

// DialResult is the asynchronous outcome of the dial currently in flight.
type DialResult struct {
	Success bool
	Text    string
}

// DialQueue serializes card-order fulfillment: orders wait in FIFO order and
// at most one dial session is in flight at any time. A maintenance pause
// keeps the queue accumulating without dialing.
type DialQueue struct {
	mu      sync.Mutex
	pending []Order
	current *Order
	busy    bool
	paused  bool

	results chan DialResult
	closed  chan struct{}
	once    sync.Once

	surface  DialSurface
	store    OrderStore
	prefixes map[string]string
	logger   *zerolog.Logger
}

// NewDialQueue builds a queue over the given dial surface. prefixes maps a
// recognized dial-code prefix to the provider it belongs to; orders whose
// code matches no prefix are failed without dialing.
func NewDialQueue(surface DialSurface, store OrderStore, prefixes map[string]string, logger *zerolog.Logger) *DialQueue {
	return &DialQueue{
		results:  make(chan DialResult, 1),
		closed:   make(chan struct{}),
		surface:  surface,
		store:    store,
		prefixes: prefixes,
		logger:   logger,
	}
}

// Enqueue appends the order unless it is already queued or in flight, then
// tries to advance the queue.
func (q *DialQueue) Enqueue(order Order) {
	q.mu.Lock()
	if q.contains(order.ID) {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, order)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Info().
		Str("order_id", order.ID).
		Int("queue_depth", depth).
		Msg("card order enqueued")

	q.advance()
}

// contains is called with q.mu held.
func (q *DialQueue) contains(orderID string) bool {
	if q.current != nil && q.current.ID == orderID {
		return true
	}
	for _, o := range q.pending {
		if o.ID == orderID {
			return true
		}
	}
	return false
}

// advance starts the next dial cycle. It is a no-op when a dial is already
// in flight, the queue is paused or there is nothing to do.
func (q *DialQueue) advance() {
	q.mu.Lock()
	if q.busy || q.paused || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	order := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &order
	q.busy = true
	q.mu.Unlock()

	go q.runDial(order)
}

// runDial drives one dial-and-wait cycle to completion and advances the
// queue afterwards.
func (q *DialQueue) runDial(order Order) {
	// discard any stale result left over from a previous cycle
	select {
	case <-q.results:
	default:
	}

	provider, ok := q.lookupPrefix(order.TargetInfo)
	if !ok {
		q.logger.Warn().
			Str("order_id", order.ID).
			Str("dial_code", order.TargetInfo).
			Msg("unrecognized dial code")
		q.finish(order, StatusUpdate{
			Status: StatusFailed,
			Reason: "unrecognized or empty dial code",
		})
		return
	}

	q.logger.Info().
		Str("order_id", order.ID).
		Str("provider", provider).
		Msg("dial started")

	if !q.surface.StartDial(order.TargetInfo, provider) {
		q.finish(order, StatusUpdate{
			Status: StatusFailed,
			Reason: "dial surface rejected the request",
		})
		return
	}

	select {
	case res := <-q.results:
		q.logger.Info().
			Str("order_id", order.ID).
			Bool("success", res.Success).
			Msg("dial result")
		if res.Success {
			q.finish(order, StatusUpdate{
				Status:       StatusAwaitingConfirmation,
				ResponseText: res.Text,
			})
		} else {
			q.finish(order, StatusUpdate{
				Status:       StatusFailed,
				Reason:       "dial session reported failure",
				ResponseText: res.Text,
			})
		}
	case <-q.closed:
		// subsystem shutdown: leave the order pending, write nothing
		q.mu.Lock()
		q.current = nil
		q.busy = false
		q.mu.Unlock()
	}
}

// finish writes the terminal status, clears the in-flight slot and advances.
func (q *DialQueue) finish(order Order, update StatusUpdate) {
	if err := q.store.UpdateStatus(order.ID, update); err != nil {
		q.logger.Error().Err(err).
			Str("order_id", order.ID).
			Str("status", update.Status).
			Msg("failed to write dial outcome")
	}

	q.mu.Lock()
	q.current = nil
	q.busy = false
	q.mu.Unlock()

	q.logger.Debug().Str("order_id", order.ID).Msg("queue advanced")
	q.advance()
}

// HandleResult feeds the outcome of the current dial session. Results that
// arrive with no dial in flight are logged and dropped; the surface is
// trusted to deliver at most one result per dial.
func (q *DialQueue) HandleResult(res DialResult) {
	q.mu.Lock()
	busy := q.busy
	q.mu.Unlock()
	if !busy {
		q.logger.Warn().Bool("success", res.Success).Msg("dial result with no dial in flight")
		return
	}
	select {
	case q.results <- res:
	default:
	}
}

// Pause stops the queue from starting new dial cycles. The cycle already in
// flight, if any, runs to completion.
func (q *DialQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Info().Msg("dial queue paused")
}

// Resume lifts a maintenance pause and immediately re-checks the queue.
func (q *DialQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.logger.Info().Msg("dial queue resumed")
	q.advance()
}

// Paused reports whether the queue is under a maintenance pause.
func (q *DialQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Depth reports the number of queued orders, excluding the one in flight.
func (q *DialQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports the id of the order currently dialing, if any.
func (q *DialQueue) InFlight() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return "", false
	}
	return q.current.ID, true
}

// Close aborts the in-flight wait, if any. Queued orders stay queued.
func (q *DialQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *DialQueue) lookupPrefix(code string) (string, bool) {
	if code == "" {
		return "", false
	}
	for prefix, provider := range q.prefixes {
		if strings.HasPrefix(code, prefix) {
			return provider, true
		}
	}
	return "", false
}
