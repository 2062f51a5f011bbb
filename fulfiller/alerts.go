package fulfiller

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthReport is a device-health sample posted by the field device.
type HealthReport struct {
	BatteryPct float64 `json:"battery_pct"`
	TempC      float64 `json:"temp_c"`
}

// Alerter turns device-health samples into admin notifications. Alerts are
// throttled so a device sitting at a bad reading doesn't flood the admins.
type Alerter struct {
	mu        sync.Mutex
	lastAlert time.Time

	store      *Store
	logger     *zerolog.Logger
	throttle   time.Duration
	minBattery float64
	maxTemp    float64
}

func NewAlerter(store *Store, logger *zerolog.Logger, throttle time.Duration, minBattery, maxTemp float64) *Alerter {
	return &Alerter{
		store:      store,
		logger:     logger,
		throttle:   throttle,
		minBattery: minBattery,
		maxTemp:    maxTemp,
	}
}

// Observe records one health sample and raises a CRITICAL HEALTH admin
// notification when a threshold is crossed and the throttle window allows.
func (a *Alerter) Observe(report HealthReport) {
	a.logger.Debug().
		Float64("battery_pct", report.BatteryPct).
		Float64("temp_c", report.TempC).
		Msg("device health report")

	if report.TempC <= a.maxTemp && report.BatteryPct >= a.minBattery {
		return
	}

	a.mu.Lock()
	if time.Since(a.lastAlert) < a.throttle {
		a.mu.Unlock()
		return
	}
	a.lastAlert = time.Now()
	a.mu.Unlock()

	msg := fmt.Sprintf("Battery: %.0f%%, Temp: %.1fC", report.BatteryPct, report.TempC)
	a.logger.Warn().Str("detail", msg).Msg("critical device health")
	if err := a.store.InsertAdminNotification("CRITICAL HEALTH", msg); err != nil {
		a.logger.Error().Err(err).Msg("failed to write admin notification")
	}
}
