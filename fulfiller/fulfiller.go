package fulfiller

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Config struct {
	ListenAddr           string            `json:"listen_addr,omitempty" toml:"listen_addr,omitempty"`
	MatchWindowMinutes   int               `json:"match_window_minutes,omitempty" toml:"match_window_minutes,omitempty"`
	PollIntervalSeconds  int               `json:"poll_interval_seconds,omitempty" toml:"poll_interval_seconds,omitempty"`
	AlertThrottleMinutes int               `json:"alert_throttle_minutes,omitempty" toml:"alert_throttle_minutes,omitempty"`
	MinBatteryPct        float64           `json:"min_battery_pct,omitempty" toml:"min_battery_pct,omitempty"`
	MaxTempC             float64           `json:"max_temp_c,omitempty" toml:"max_temp_c,omitempty"`
	DialPrefixes         map[string]string `json:"dial_prefixes,omitempty" toml:"dial_prefixes,omitempty"`
}

// DefaultDialPrefixes maps recognized card dial-code prefixes to the
// provider they belong to.
var DefaultDialPrefixes = map[string]string{
	"*113*": ProviderAsiacell,
	"*133*": ProviderZain,
}

func MustLoadConfig(path string) *Config {
	cfg := &Config{}
	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	if err = toml.Unmarshal(file, cfg); err != nil {
		panic(err)
	}
	cfg.applyDefaults()
	return cfg
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MatchWindowMinutes <= 0 {
		c.MatchWindowMinutes = int(DefaultMatchWindow / time.Minute)
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 5
	}
	if c.AlertThrottleMinutes <= 0 {
		c.AlertThrottleMinutes = 30
	}
	if c.MinBatteryPct == 0 {
		c.MinBatteryPct = 15
	}
	if c.MaxTempC == 0 {
		c.MaxTempC = 45
	}
	if len(c.DialPrefixes) == 0 {
		c.DialPrefixes = DefaultDialPrefixes
	}
}

// Fulfiller wires the bus, registry, queue, intake and store into one
// explicitly constructed instance. There is no process-wide state; tests
// build as many independent instances as they like.
type Fulfiller struct {
	cfg    *Config
	logger *zerolog.Logger

	store    *Store
	bus      *Bus
	registry *Registry
	queue    *DialQueue
	intake   *Intake
	poller   *Poller
	alerter  *Alerter
}

func NewFulfiller(db *sql.DB, cfg *Config, logger *zerolog.Logger, surface DialSurface) *Fulfiller {
	store := NewStore(db, logger)
	bus := NewBus()
	registry := NewRegistry(bus, store, logger, time.Duration(cfg.MatchWindowMinutes)*time.Minute)
	queue := NewDialQueue(surface, store, cfg.DialPrefixes, logger)
	intake := NewIntake(registry, queue, logger)
	poller := NewPoller(store, time.Duration(cfg.PollIntervalSeconds)*time.Second, logger)
	alerter := NewAlerter(store, logger,
		time.Duration(cfg.AlertThrottleMinutes)*time.Minute, cfg.MinBatteryPct, cfg.MaxTempC)

	return &Fulfiller{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      bus,
		registry: registry,
		queue:    queue,
		intake:   intake,
		poller:   poller,
		alerter:  alerter,
	}
}

func (f *Fulfiller) Store() *Store       { return f.store }
func (f *Fulfiller) Registry() *Registry { return f.registry }
func (f *Fulfiller) Queue() *DialQueue   { return f.queue }

// Run drives the poller and intake until the context is cancelled, then
// shuts down watchers and the dial queue.
func (f *Fulfiller) Run(ctx context.Context) {
	f.logger.Info().
		Int("poll_interval_seconds", f.cfg.PollIntervalSeconds).
		Int("match_window_minutes", f.cfg.MatchWindowMinutes).
		Msg("fulfiller started")

	go f.poller.Run(ctx)
	f.intake.Run(ctx, f.poller.Changes())

	f.queue.Close()
	f.registry.Close()
	f.logger.Info().Msg("fulfiller stopped")
}

// PublishNotification is the surface the notification parser calls once per
// recognized inbound message.
func (f *Fulfiller) PublishNotification(amount decimal.Decimal, senderPhone, provider string) {
	f.logger.Info().
		Str("amount", amount.String()).
		Str("sender_phone", senderPhone).
		Str("provider", provider).
		Msg("notification published")
	f.bus.Publish(NotificationEvent{
		Amount:      amount,
		SenderPhone: senderPhone,
		Provider:    provider,
	})
}

// IngestSMS parses a raw inbound message and publishes it when it is a
// recognized transfer notification. Returns whether anything was published.
func (f *Fulfiller) IngestSMS(sender, body string) bool {
	ev, ok := ParseInboundSMS(sender, body)
	if !ok {
		f.logger.Debug().Str("sender", sender).Msg("unrecognized inbound sms")
		return false
	}
	f.PublishNotification(ev.Amount, ev.SenderPhone, ev.Provider)
	return true
}

// IngestDialText classifies a dial-session screen text and resolves the
// in-flight dial when the text is conclusive.
func (f *Fulfiller) IngestDialText(text string) DialStatus {
	status := ClassifyDialText(text)
	if status == DialUnknown {
		f.logger.Debug().Msg("inconclusive dial text")
		return status
	}
	f.queue.HandleResult(DialResult{
		Success: status == DialSuccess,
		Text:    text,
	})
	return status
}

// IngestHealth forwards a device-health sample to the alerter.
func (f *Fulfiller) IngestHealth(report HealthReport) {
	f.alerter.Observe(report)
}
