package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// Slot is a fixed daily time-of-day at which a notification is due,
// interpreted in the scheduler's reporting timezone.
type Slot struct {
	Hour   int
	Minute int
}

// ParseSlot parses "HH:MM" into a Slot.
func ParseSlot(s string) (Slot, error) {
	var slot Slot
	if _, err := fmt.Sscanf(s, "%d:%d", &slot.Hour, &slot.Minute); err != nil {
		return Slot{}, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	if slot.Hour < 0 || slot.Hour > 23 || slot.Minute < 0 || slot.Minute > 59 {
		return Slot{}, fmt.Errorf("invalid slot %q: out of range", s)
	}
	return slot, nil
}

// Key returns the slot's canonical "HH:MM" form, used for logging and
// fulfillment persistence.
func (s Slot) Key() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// instantOn returns the slot's wall-clock instant on the same day as now,
// in now's location.
func (s Slot) instantOn(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
}

// sortSlots orders slots ascending by time-of-day.
func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Hour != slots[j].Hour {
			return slots[i].Hour < slots[j].Hour
		}
		return slots[i].Minute < slots[j].Minute
	})
}

// NextRun returns the next scheduled instant strictly after now, wrapping
// to the first slot of the following day when past the last slot.
// Requires at least one slot.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	for _, slot := range s.slots {
		instant := slot.instantOn(now)
		if instant.After(now) {
			return instant
		}
	}
	return s.slots[0].instantOn(now.AddDate(0, 0, 1))
}
