package scheduler

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestParseSlot covers valid forms and range checks.
func TestParseSlot(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Slot
		wantErr bool
	}{
		{name: "morning", in: "08:00", want: Slot{Hour: 8, Minute: 0}},
		{name: "evening", in: "21:30", want: Slot{Hour: 21, Minute: 30}},
		{name: "no padding", in: "8:5", want: Slot{Hour: 8, Minute: 5}},
		{name: "hour out of range", in: "24:00", wantErr: true},
		{name: "minute out of range", in: "08:60", wantErr: true},
		{name: "garbage", in: "morning", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSlot(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSlot(%q) error = nil, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSlot(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseSlot(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSlotKey(t *testing.T) {
	if got := (Slot{Hour: 8, Minute: 0}).Key(); got != "08:00" {
		t.Fatalf("Key() = %q, want %q", got, "08:00")
	}
	if got := (Slot{Hour: 21, Minute: 30}).Key(); got != "21:30" {
		t.Fatalf("Key() = %q, want %q", got, "21:30")
	}
}

// TestSchedulerSortsSlots verifies the constructor enforces the
// ascending-by-time-of-day invariant regardless of input order.
func TestSchedulerSortsSlots(t *testing.T) {
	s, err := New([]Slot{{Hour: 21, Minute: 30}, {Hour: 8, Minute: 0}}, time.UTC, &mockRunner{}, &mockDispatcher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.slots[0] != (Slot{Hour: 8, Minute: 0}) || s.slots[1] != (Slot{Hour: 21, Minute: 30}) {
		t.Fatalf("slots = %+v, want ascending order", s.slots)
	}
}

// TestNextRun verifies next-slot computation including the wrap to the
// first slot of the following day.
func TestNextRun(t *testing.T) {
	s := newTestScheduler(t, &mockRunner{}, &mockDispatcher{})

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before first slot",
			now:  at(6, 0, 0),
			want: at(8, 0, 0),
		},
		{
			name: "between slots",
			now:  at(10, 0, 0),
			want: at(21, 30, 0),
		},
		{
			name: "past last slot wraps to tomorrow",
			now:  at(22, 0, 0),
			want: at(8, 0, 0).AddDate(0, 0, 1),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.NextRun(tc.now); !got.Equal(tc.want) {
				t.Fatalf("NextRun(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestNewRequiresSlots(t *testing.T) {
	if _, err := New(nil, time.UTC, &mockRunner{}, &mockDispatcher{}, zap.NewNop()); err == nil {
		t.Fatal("New() with no slots error = nil, want error")
	}
}
