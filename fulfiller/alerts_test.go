package fulfiller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func countAdminNotifications(t *testing.T, store *Store) int {
	t.Helper()
	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM admin_notifications").Scan(&count)
	assert.NoError(t, err)
	return count
}

func TestAlerterIgnoresHealthyReports(t *testing.T) {
	store := newTestStore(t)
	alerter := NewAlerter(store, testLogger(), 30*time.Minute, 15, 45)

	alerter.Observe(HealthReport{BatteryPct: 80, TempC: 30})
	alerter.Observe(HealthReport{BatteryPct: 15, TempC: 45})

	assert.Equal(t, 0, countAdminNotifications(t, store))
}

func TestAlerterRaisesOnLowBattery(t *testing.T) {
	store := newTestStore(t)
	alerter := NewAlerter(store, testLogger(), 30*time.Minute, 15, 45)

	alerter.Observe(HealthReport{BatteryPct: 10, TempC: 30})
	assert.Equal(t, 1, countAdminNotifications(t, store))
}

func TestAlerterRaisesOnHighTemperature(t *testing.T) {
	store := newTestStore(t)
	alerter := NewAlerter(store, testLogger(), 30*time.Minute, 15, 45)

	alerter.Observe(HealthReport{BatteryPct: 90, TempC: 47.5})
	assert.Equal(t, 1, countAdminNotifications(t, store))
}

func TestAlerterThrottlesRepeatedAlerts(t *testing.T) {
	store := newTestStore(t)
	alerter := NewAlerter(store, testLogger(), 30*time.Minute, 15, 45)

	for i := 0; i < 5; i++ {
		alerter.Observe(HealthReport{BatteryPct: 10, TempC: 30})
	}
	assert.Equal(t, 1, countAdminNotifications(t, store))
}

func TestAlerterAlertsAgainAfterThrottleWindow(t *testing.T) {
	store := newTestStore(t)
	alerter := NewAlerter(store, testLogger(), 20*time.Millisecond, 15, 45)

	alerter.Observe(HealthReport{BatteryPct: 10, TempC: 30})
	time.Sleep(30 * time.Millisecond)
	alerter.Observe(HealthReport{BatteryPct: 10, TempC: 30})

	assert.Equal(t, 2, countAdminNotifications(t, store))
}
