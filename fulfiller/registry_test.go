package fulfiller

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pendingOrder(id string, amount int64) Order {
	return Order{
		ID:           id,
		Amount:       decimal.NewFromInt(amount),
		Provider:     ProviderAsiacell,
		TransferType: TransferDirect,
		Status:       StatusPending,
		UserPhone:    "07714097343",
		CreatedAt:    time.Now(),
	}
}

func TestWatcherResolvesOnMatch(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	defer registry.Close()

	order := pendingOrder("ord-1", 5000)
	registry.Ensure(order)
	waitSubscribers(t, bus, 1)

	// a non-matching event first, then the real one
	bus.Publish(NotificationEvent{Amount: decimal.NewFromInt(9999), Provider: ProviderAsiacell, SenderPhone: "714097343"})
	bus.Publish(NotificationEvent{Amount: decimal.NewFromInt(5000), Provider: "asiacell", SenderPhone: "714097343"})

	assert.Eventually(t, func() bool {
		return len(store.Updates()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	updates := store.Updates()
	assert.Equal(t, "ord-1", updates[0].OrderID)
	assert.Equal(t, StatusAwaitingConfirmation, updates[0].Update.Status)
	assert.True(t, updates[0].Update.AmountMatched.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "714097343", updates[0].Update.SenderPhone)
	assert.False(t, updates[0].Update.ConfirmedAt.IsZero())

	assert.Eventually(t, func() bool { return registry.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherAtMostOneResolution(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	defer registry.Close()

	order := pendingOrder("ord-1", 5000)
	registry.Ensure(order)
	waitSubscribers(t, bus, 1)

	// duplicate delivery of the same matching event
	match := NotificationEvent{Amount: decimal.NewFromInt(5000), Provider: ProviderAsiacell, SenderPhone: "714097343"}
	for i := 0; i < 10; i++ {
		bus.Publish(match)
	}

	assert.Eventually(t, func() bool { return registry.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, store.Updates(), 1, "duplicate events must not produce a second write")
}

func TestWatcherTimesOut(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), 30*time.Millisecond)
	defer registry.Close()

	registry.Ensure(pendingOrder("ord-1", 5000))

	assert.Eventually(t, func() bool {
		return len(store.Updates()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	updates := store.Updates()
	assert.Equal(t, StatusFailed, updates[0].Update.Status)
	assert.Equal(t, timeoutReason, updates[0].Update.Reason)
	assert.Eventually(t, func() bool { return registry.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherExpiredBeforeProcessing(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), 30*time.Minute)
	defer registry.Close()

	order := pendingOrder("ord-1", 5000)
	order.CreatedAt = time.Now().Add(-31 * time.Minute)
	registry.Ensure(order)

	assert.Eventually(t, func() bool {
		return len(store.Updates()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	updates := store.Updates()
	assert.Equal(t, StatusFailed, updates[0].Update.Status)
	assert.Equal(t, "expired before processing", updates[0].Update.Reason)
	assert.Equal(t, 0, bus.Subscribers(), "an expired order must never subscribe to the bus")
}

func TestEnsureIsIdempotent(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	defer registry.Close()

	order := pendingOrder("ord-1", 5000)
	registry.Ensure(order)
	registry.Ensure(order)
	registry.Ensure(order)

	assert.Equal(t, 1, registry.Active())
	waitSubscribers(t, bus, 1)
}

func TestDismissWritesNothing(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)

	registry.Ensure(pendingOrder("ord-1", 5000))
	waitSubscribers(t, bus, 1)
	registry.Dismiss("ord-1")

	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, registry.Active())
	assert.Empty(t, store.Updates(), "a dismissed watcher must not write a resolution")
}

func TestDismissAbsentIsNoop(t *testing.T) {
	registry := NewRegistry(NewBus(), &recordStore{}, testLogger(), time.Hour)
	registry.Dismiss("no-such-order")
	assert.Equal(t, 0, registry.Active())
}

func TestDismissRacesSelfUnregistration(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	defer registry.Close()

	for i := 0; i < 50; i++ {
		order := pendingOrder("ord-race", 5000)
		registry.Ensure(order)
		waitSubscribers(t, bus, 1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(NotificationEvent{Amount: decimal.NewFromInt(5000), Provider: ProviderAsiacell, SenderPhone: "714097343"})
		}()
		go func() {
			defer wg.Done()
			registry.Dismiss("ord-race")
		}()
		wg.Wait()

		assert.Eventually(t, func() bool { return registry.Active() == 0 }, 2*time.Second, time.Millisecond)
		assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, time.Millisecond)
	}
	// each round resolves at most once, by match or not at all
	assert.LessOrEqual(t, len(store.Updates()), 50)
	for _, u := range store.Updates() {
		assert.Equal(t, StatusAwaitingConfirmation, u.Update.Status)
	}
}

func TestRegistryCloseJoinsWatchers(t *testing.T) {
	bus := NewBus()
	store := &recordStore{}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)

	registry.Ensure(pendingOrder("ord-1", 1000))
	registry.Ensure(pendingOrder("ord-2", 2000))
	waitSubscribers(t, bus, 2)

	registry.Close()
	assert.Equal(t, 0, registry.Active())
	assert.Equal(t, 0, bus.Subscribers())
	assert.Empty(t, store.Updates())
}

func TestWatcherSurvivesFailedWrite(t *testing.T) {
	bus := NewBus()
	store := &recordStore{err: assert.AnError}
	registry := NewRegistry(bus, store, testLogger(), time.Hour)
	defer registry.Close()

	registry.Ensure(pendingOrder("ord-1", 5000))
	waitSubscribers(t, bus, 1)
	bus.Publish(NotificationEvent{Amount: decimal.NewFromInt(5000), Provider: ProviderAsiacell, SenderPhone: "714097343"})

	// the failed write is logged, the watcher still exits
	assert.Eventually(t, func() bool { return registry.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}
