// Package detect compares consecutive observations for a location and
// raises alert events for significant changes.
package detect

import (
	"math"

	"github.com/dmarkov/weather-notify/internal/models"
)

// Default thresholds matching the reference deployment.
const (
	DefaultTempJumpDelta = 5.0
	DefaultHighWindSpeed = 15.0
)

// Detector holds the alert thresholds. Zero values disable the rule.
type Detector struct {
	TempJumpDelta float64 // degrees C between consecutive observations
	HighWindSpeed float64 // m/s, absolute
}

// NewDetector creates a Detector with the reference thresholds.
func NewDetector() *Detector {
	return &Detector{
		TempJumpDelta: DefaultTempJumpDelta,
		HighWindSpeed: DefaultHighWindSpeed,
	}
}

// Detect compares the current observation against the previous one and
// returns zero or more alert events. Rules are independent; both may fire.
// prev is nil on the first observation for a location, which can never
// produce a temperature jump. High wind is evaluated on the current reading
// alone and re-fires every cycle the condition holds; there is deliberately
// no suppression window.
func (d *Detector) Detect(locationID string, prev *models.Observation, cur models.Observation) []models.AlertEvent {
	var events []models.AlertEvent

	if prev != nil && d.TempJumpDelta > 0 {
		delta := math.Abs(cur.Temperature - prev.Temperature)
		if delta >= d.TempJumpDelta {
			events = append(events, models.AlertEvent{
				LocationID: locationID,
				Kind:       models.AlertTemperatureJump,
				Magnitude:  delta,
			})
		}
	}

	if d.HighWindSpeed > 0 && cur.WindSpeed >= d.HighWindSpeed {
		events = append(events, models.AlertEvent{
			LocationID: locationID,
			Kind:       models.AlertHighWind,
			Magnitude:  cur.WindSpeed,
		})
	}

	return events
}
