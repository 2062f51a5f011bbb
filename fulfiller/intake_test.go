package fulfiller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type intakeFixture struct {
	bus      *Bus
	store    *recordStore
	registry *Registry
	queue    *DialQueue
	surface  *fakeDialSurface
	intake   *Intake
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	surface := newFakeDialSurface(true)
	queue := NewDialQueue(surface, store, DefaultDialPrefixes, testLogger())
	t.Cleanup(func() {
		queue.Close()
		registry.Close()
	})
	return &intakeFixture{
		bus:      bus,
		store:    store,
		registry: registry,
		queue:    queue,
		surface:  surface,
		intake:   NewIntake(registry, queue, testLogger()),
	}
}

func TestIntakeRoutesDirectOrders(t *testing.T) {
	fx := newIntakeFixture(t)

	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: pendingOrder("ord-1", 5000)})

	assert.Equal(t, 1, fx.registry.Active())
	assert.Equal(t, 0, fx.queue.Depth())
}

func TestIntakeRoutesCardOrders(t *testing.T) {
	fx := newIntakeFixture(t)

	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: cardOrder("card-1", "*113*1111#")})

	assert.Equal(t, 0, fx.registry.Active())
	fx.surface.awaitDial(t)
}

func TestIntakeIgnoresUnsupportedTransferType(t *testing.T) {
	fx := newIntakeFixture(t)

	order := pendingOrder("ord-1", 5000)
	order.TransferType = "crypto"
	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: order})

	assert.Equal(t, 0, fx.registry.Active())
	assert.Equal(t, 0, fx.queue.Depth())
	fx.surface.assertNoDial(t)
}

func TestIntakeDismissesOnRemoval(t *testing.T) {
	fx := newIntakeFixture(t)

	order := pendingOrder("ord-1", 5000)
	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: order})
	assert.Equal(t, 1, fx.registry.Active())

	fx.intake.Apply(OrderChange{Type: ChangeRemoved, Order: Order{ID: "ord-1"}})
	assert.Equal(t, 0, fx.registry.Active())
	assert.Empty(t, fx.store.Updates())
}

func TestIntakeDismissesOnStatusLeavingPending(t *testing.T) {
	fx := newIntakeFixture(t)

	order := pendingOrder("ord-1", 5000)
	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: order})

	modified := order
	modified.Status = StatusFailed
	fx.intake.Apply(OrderChange{Type: ChangeModified, Order: modified})
	assert.Equal(t, 0, fx.registry.Active())
}

func TestIntakeModifiedStillPendingKeepsWatcher(t *testing.T) {
	fx := newIntakeFixture(t)

	order := pendingOrder("ord-1", 5000)
	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: order})
	fx.intake.Apply(OrderChange{Type: ChangeModified, Order: order})

	assert.Equal(t, 1, fx.registry.Active())
}

func TestIntakeDismissForCardOrderIsNoop(t *testing.T) {
	fx := newIntakeFixture(t)

	fx.intake.Apply(OrderChange{Type: ChangeAdded, Order: cardOrder("card-1", "*113*1111#")})
	fx.surface.awaitDial(t)

	// card orders have no watcher; dismissal must be harmless
	fx.intake.Apply(OrderChange{Type: ChangeRemoved, Order: Order{ID: "card-1"}})
	assert.Equal(t, 0, fx.registry.Active())
}

func TestIntakeRunStopsOnContextCancel(t *testing.T) {
	fx := newIntakeFixture(t)

	changes := make(chan OrderChange)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		fx.intake.Run(ctx, changes)
		close(done)
	}()

	changes <- OrderChange{Type: ChangeAdded, Order: pendingOrder("ord-1", 5000)}
	assert.Eventually(t, func() bool { return fx.registry.Active() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("intake did not stop on context cancel")
	}
}
