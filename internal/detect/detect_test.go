package detect

import (
	"testing"

	"github.com/dmarkov/weather-notify/internal/models"
)

func obs(temp, wind float64) models.Observation {
	return models.Observation{Temperature: temp, WindSpeed: wind}
}

// TestDetector_TemperatureJump verifies the temperature jump rule fires at
// the threshold and not below it, and never without a previous observation.
func TestDetector_TemperatureJump(t *testing.T) {
	tests := []struct {
		name      string
		prev      *models.Observation
		cur       models.Observation
		wantJumps int
	}{
		{
			name:      "exactly at threshold",
			prev:      &models.Observation{Temperature: 20.0},
			cur:       obs(25.0, 0),
			wantJumps: 1,
		},
		{
			name:      "just below threshold",
			prev:      &models.Observation{Temperature: 20.0},
			cur:       obs(24.9, 0),
			wantJumps: 0,
		},
		{
			name:      "drop counts too",
			prev:      &models.Observation{Temperature: 20.0},
			cur:       obs(13.5, 0),
			wantJumps: 1,
		},
		{
			name:      "no previous observation",
			prev:      nil,
			cur:       obs(40.0, 0),
			wantJumps: 0,
		},
	}

	d := NewDetector()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := d.Detect("moscow", tc.prev, tc.cur)
			jumps := 0
			for _, e := range events {
				if e.Kind == models.AlertTemperatureJump {
					jumps++
				}
			}
			if jumps != tc.wantJumps {
				t.Fatalf("Detect() temperature jumps = %d, want %d (events %v)", jumps, tc.wantJumps, events)
			}
		})
	}
}

// TestDetector_HighWind verifies the high wind rule is evaluated on the
// current reading alone, at the threshold boundary.
func TestDetector_HighWind(t *testing.T) {
	tests := []struct {
		name     string
		wind     float64
		wantFire bool
	}{
		{name: "exactly at threshold", wind: 15.0, wantFire: true},
		{name: "just below threshold", wind: 14.99, wantFire: false},
		{name: "well above", wind: 22.4, wantFire: true},
		{name: "calm", wind: 0, wantFire: false},
	}

	d := NewDetector()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := d.Detect("pskov", nil, obs(10.0, tc.wind))
			fired := false
			for _, e := range events {
				if e.Kind == models.AlertHighWind {
					fired = true
					if e.Magnitude != tc.wind {
						t.Errorf("HighWind magnitude = %v, want %v", e.Magnitude, tc.wind)
					}
				}
			}
			if fired != tc.wantFire {
				t.Fatalf("Detect() high wind fired = %v, want %v", fired, tc.wantFire)
			}
		})
	}
}

// TestDetector_BothRulesFire verifies the rules are independent and can
// fire in the same cycle, and that sustained high wind re-fires.
func TestDetector_BothRulesFire(t *testing.T) {
	d := NewDetector()
	prev := &models.Observation{Temperature: 10.0, WindSpeed: 16.0}

	events := d.Detect("belgrade", prev, obs(16.0, 16.0))
	if len(events) != 2 {
		t.Fatalf("Detect() returned %d events, want 2: %v", len(events), events)
	}

	// Wind persists: second cycle with no temperature change still alerts.
	events = d.Detect("belgrade", &models.Observation{Temperature: 16.0, WindSpeed: 16.0}, obs(16.0, 16.0))
	if len(events) != 1 || events[0].Kind != models.AlertHighWind {
		t.Fatalf("Detect() on sustained wind = %v, want single high_wind", events)
	}
}
