// Package notify formats collection results into a digest message and
// fans it out to subscribers. Delivery is fire-and-forget: a failed send
// to one subscriber is logged and never blocks the rest, and no error is
// reported to the caller since the next scheduled or backfilled cycle
// redelivers current data anyway.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmarkov/weather-notify/internal/models"
	"github.com/dmarkov/weather-notify/internal/observability"
)

// Sender delivers one message to one subscriber. Implemented by
// TelegramSender; one call per subscriber per dispatch.
type Sender interface {
	SendMessage(ctx context.Context, subscriberID string, text string) error
}

// Dispatcher builds one digest per cycle and sends it to every subscriber.
type Dispatcher struct {
	sender      Sender
	subscribers []string
	tz          *time.Location
	logger      *zap.Logger
	titler      cases.Caser

	now func() time.Time
}

// NewDispatcher creates a Dispatcher for a fixed subscriber list.
// Digest timestamps are rendered in tz, the reporting timezone.
func NewDispatcher(sender Sender, subscribers []string, tz *time.Location, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		subscribers: subscribers,
		tz:          tz,
		logger:      logger,
		titler:      cases.Title(language.English),
		now:         time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch sends the digest for one cycle's results to all subscribers.
// Per-subscriber failures are isolated and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, results []models.CollectionResult) {
	if len(d.subscribers) == 0 {
		d.logger.Debug("no subscribers, skipping dispatch")
		return
	}

	text := d.FormatDigest(results)
	delivered := 0
	for _, sub := range d.subscribers {
		if err := d.sender.SendMessage(ctx, sub, text); err != nil {
			observability.DispatchesTotal.WithLabelValues("error").Inc()
			d.logger.Error("delivery failed", zap.String("subscriber", sub), zap.Error(err))
			continue
		}
		observability.DispatchesTotal.WithLabelValues("success").Inc()
		delivered++
	}
	d.logger.Info("digest dispatched",
		zap.Int("subscribers", len(d.subscribers)),
		zap.Int("delivered", delivered),
	)
}

// FormatDigest renders one message covering all locations. Present data
// is rendered fully; an absent location gets an explicit failure line.
func (d *Dispatcher) FormatDigest(results []models.CollectionResult) string {
	var b strings.Builder
	now := d.now().In(d.tz)
	fmt.Fprintf(&b, "Weather update (%s %s)\n\n", now.Format("MST"), now.Format("02.01.2006 15:04"))

	for _, r := range results {
		if r.Observation == nil {
			fmt.Fprintf(&b, "%s: no data available\n\n", r.Location.Name)
			continue
		}
		obs := r.Observation
		fmt.Fprintf(&b, "%s:\n", r.Location.Name)
		fmt.Fprintf(&b, "  Temperature: %.1f°C (feels like %.1f°C)\n", obs.Temperature, obs.FeelsLike)
		fmt.Fprintf(&b, "  Humidity: %d%%\n", obs.Humidity)
		fmt.Fprintf(&b, "  Wind: %.1f m/s\n", obs.WindSpeed)
		if obs.Description != "" {
			fmt.Fprintf(&b, "  %s\n", d.titler.String(obs.Description))
		}
		if r.Stale {
			fmt.Fprintf(&b, "  (stale reading from %s)\n", obs.FetchedAt.In(d.tz).Format("15:04"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
