// Package scheduler drives the collection and notification engine: a
// level-triggered polling loop that decides on every tick whether a
// scheduled slot is due, services it, and backfills slots missed within
// a bounded grace window. The loop never exits on a tick's error.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmarkov/weather-notify/internal/models"
	"github.com/dmarkov/weather-notify/internal/observability"
)

// Sleep intervals of the polling loop. The 31s skip sleep guarantees a
// serviced slot's own minute window cannot re-trigger it.
const (
	defaultTickInterval = 30 * time.Second
	defaultSlotWindow   = 30 * time.Second
	defaultSkipSleep    = 31 * time.Second
	defaultGrace        = 30 * time.Minute
	defaultErrBackoff   = 60 * time.Second
)

// CycleRunner runs one collection cycle. Implemented by collector.Collector.
type CycleRunner interface {
	Run(ctx context.Context, force bool) []models.CollectionResult
}

// Dispatcher delivers a cycle's results to subscribers. Fire-and-forget:
// delivery failures stay inside the dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, results []models.CollectionResult)
}

// FulfillmentStore persists slot fulfillment instants across restarts.
// Optional; without it a restart inside a grace window may re-dispatch an
// already-serviced slot (at-least-once delivery).
type FulfillmentStore interface {
	SaveFulfillment(ctx context.Context, slotKey string, at time.Time) error
	Fulfillments(ctx context.Context) (map[string]time.Time, error)
}

// Scheduler owns the timing state machine and the per-slot fulfillment
// state. One Scheduler drives one engine; it never runs a cycle
// concurrently with itself.
type Scheduler struct {
	slots        []Slot
	tz           *time.Location
	runner       CycleRunner
	dispatcher   Dispatcher
	fulfillments map[Slot]time.Time
	fstore       FulfillmentStore
	logger       *zap.Logger

	tickInterval time.Duration
	slotWindow   time.Duration
	skipSleep    time.Duration
	grace        time.Duration
	errBackoff   time.Duration

	now func() time.Time
}

// Option configures optional Scheduler collaborators and test hooks.
type Option func(*Scheduler)

// WithFulfillmentStore enables durable fulfillment state.
func WithFulfillmentStore(fs FulfillmentStore) Option {
	return func(s *Scheduler) { s.fstore = fs }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval overrides the polling cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithGrace overrides the missed-slot grace window.
func WithGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.grace = d }
}

// New creates a Scheduler for a fixed slot table in a fixed timezone.
// Slots are sorted ascending by time-of-day; at least one is required.
func New(slots []Slot, tz *time.Location, runner CycleRunner, dispatcher Dispatcher, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("scheduler: at least one slot required")
	}
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sortSlots(sorted)

	s := &Scheduler{
		slots:        sorted,
		tz:           tz,
		runner:       runner,
		dispatcher:   dispatcher,
		fulfillments: make(map[Slot]time.Time),
		logger:       logger,
		tickInterval: defaultTickInterval,
		slotWindow:   defaultSlotWindow,
		skipSleep:    defaultSkipSleep,
		grace:        defaultGrace,
		errBackoff:   defaultErrBackoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the polling loop until ctx is cancelled. Tick-level
// failures are logged and followed by a backoff sleep; the loop itself
// is never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.fstore != nil {
		s.loadFulfillments(ctx)
	}
	s.logger.Info("scheduler started",
		zap.Int("slots", len(s.slots)),
		zap.String("timezone", s.tz.String()),
		zap.Duration("tick", s.tickInterval),
	)

	for {
		sleep := s.safeTick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// safeTick runs one tick, converting any panic into a logged error and a
// backoff sleep.
func (s *Scheduler) safeTick(ctx context.Context) (sleep time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			observability.SchedulerTickErrorsTotal.Inc()
			s.logger.Error("scheduler tick panicked", zap.Any("panic", r))
			sleep = s.errBackoff
		}
	}()
	return s.tick(ctx, s.now().In(s.tz))
}

// tick evaluates one iteration of the state machine at the given instant
// and returns how long to sleep before the next one. Level-triggered: no
// state is carried between ticks beyond the fulfillment map.
func (s *Scheduler) tick(ctx context.Context, now time.Time) time.Duration {
	observability.SchedulerTicksTotal.Inc()

	if slot, due := s.dueSlot(now); due {
		s.logger.Info("scheduled slot due",
			zap.String("slot", slot.Key()),
			zap.Time("now", now),
		)
		s.service(ctx, slot, now, "scheduled")
		return s.skipSleep
	}

	if slot, missed := s.missedSlot(now); missed {
		observability.MissedSlotBackfillsTotal.Inc()
		s.logger.Info("missed slot detected, backfilling",
			zap.String("slot", slot.Key()),
			zap.Time("now", now),
		)
		s.service(ctx, slot, now, "backfill")
		return s.tickInterval
	}

	// Once an hour, note when the next dispatch is due.
	if now.Minute() == 0 && now.Second() < int(s.tickInterval.Seconds()) {
		s.logger.Info("scheduler idle", zap.Time("next_run", s.NextRun(now)))
	}
	return s.tickInterval
}

// dueSlot reports whether now falls inside a slot's trigger window:
// matching hour and minute, and within the first slotWindow seconds of
// that minute.
func (s *Scheduler) dueSlot(now time.Time) (Slot, bool) {
	for _, slot := range s.slots {
		if now.Hour() == slot.Hour && now.Minute() == slot.Minute && now.Second() < int(s.slotWindow.Seconds()) {
			return slot, true
		}
	}
	return Slot{}, false
}

// missedSlot returns a slot whose instant today has passed by no more
// than the grace window without a fulfillment newer than that instant.
// Beyond the grace window a slot is simply skipped until the next day;
// there is no backlog.
func (s *Scheduler) missedSlot(now time.Time) (Slot, bool) {
	for _, slot := range s.slots {
		instant := slot.instantOn(now)
		if !now.After(instant) || now.Sub(instant) > s.grace {
			continue
		}
		if fulfilled, ok := s.fulfillments[slot]; ok && fulfilled.After(instant) {
			continue
		}
		return slot, true
	}
	return Slot{}, false
}

// service runs a forced collection cycle, dispatches its results
// unconditionally, and records the slot as fulfilled.
func (s *Scheduler) service(ctx context.Context, slot Slot, now time.Time, trigger string) {
	observability.CyclesTotal.WithLabelValues(trigger).Inc()

	results := s.runner.Run(ctx, true)
	s.dispatcher.Dispatch(ctx, results)
	s.fulfillments[slot] = now

	if s.fstore != nil {
		if err := s.fstore.SaveFulfillment(ctx, slot.Key(), now); err != nil {
			s.logger.Warn("persist fulfillment failed", zap.String("slot", slot.Key()), zap.Error(err))
		}
	}
	s.logger.Info("slot serviced",
		zap.String("slot", slot.Key()),
		zap.String("trigger", trigger),
		zap.Int("locations", len(results)),
	)
}

// loadFulfillments seeds the in-memory fulfillment map from the store so
// a restart inside a grace window does not duplicate a serviced slot.
func (s *Scheduler) loadFulfillments(ctx context.Context) {
	persisted, err := s.fstore.Fulfillments(ctx)
	if err != nil {
		s.logger.Warn("load fulfillments failed", zap.Error(err))
		return
	}
	for _, slot := range s.slots {
		if at, ok := persisted[slot.Key()]; ok {
			s.fulfillments[slot] = at.In(s.tz)
		}
	}
	if len(persisted) > 0 {
		s.logger.Info("fulfillment state restored", zap.Int("slots", len(persisted)))
	}
}
