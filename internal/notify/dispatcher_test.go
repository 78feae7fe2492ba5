package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmarkov/weather-notify/internal/models"
)

type mockSender struct {
	sent    []string
	failFor map[string]error
}

func (m *mockSender) SendMessage(ctx context.Context, subscriberID string, text string) error {
	m.sent = append(m.sent, subscriberID)
	if err, ok := m.failFor[subscriberID]; ok {
		return err
	}
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 10, 8, 0, 15, 0, time.UTC)
}

func sampleResults() []models.CollectionResult {
	obs := &models.Observation{
		Temperature: 3.2,
		FeelsLike:   -1.5,
		Humidity:    81,
		WindSpeed:   6.4,
		Description: "light snow",
		FetchedAt:   time.Date(2025, 3, 10, 7, 55, 0, 0, time.UTC),
	}
	return []models.CollectionResult{
		{Location: models.Location{ID: "Moscow", Name: "Moscow"}, Observation: obs},
		{Location: models.Location{ID: "Pskov", Name: "Pskov"}},
	}
}

// TestDispatcher_FailureIsolatedPerSubscriber verifies every subscriber
// gets a delivery attempt even when an earlier one fails, and that the
// failure is not retried.
func TestDispatcher_FailureIsolatedPerSubscriber(t *testing.T) {
	sender := &mockSender{failFor: map[string]error{"111": errors.New("blocked")}}
	d := NewDispatcher(sender, []string{"111", "222"}, time.UTC, zap.NewNop()).WithClock(fixedClock)

	d.Dispatch(context.Background(), sampleResults())

	if len(sender.sent) != 2 {
		t.Fatalf("delivery attempts = %d, want 2", len(sender.sent))
	}
	if sender.sent[0] != "111" || sender.sent[1] != "222" {
		t.Fatalf("attempts = %v, want both subscribers exactly once", sender.sent)
	}
}

// TestDispatcher_NoSubscribersSkipsSender verifies dispatch with an empty
// subscriber list never touches the sender.
func TestDispatcher_NoSubscribersSkipsSender(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, nil, time.UTC, zap.NewNop()).WithClock(fixedClock)

	d.Dispatch(context.Background(), sampleResults())

	if len(sender.sent) != 0 {
		t.Fatalf("delivery attempts = %d, want 0", len(sender.sent))
	}
}

// TestFormatDigest verifies present data is rendered fully and an absent
// location gets an explicit failure line.
func TestFormatDigest(t *testing.T) {
	d := NewDispatcher(nil, nil, time.UTC, zap.NewNop()).WithClock(fixedClock)

	text := d.FormatDigest(sampleResults())

	for _, want := range []string{
		"Weather update",
		"Moscow:",
		"Temperature: 3.2°C (feels like -1.5°C)",
		"Humidity: 81%",
		"Wind: 6.4 m/s",
		"Light Snow",
		"Pskov: no data available",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("digest missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "stale") {
		t.Errorf("digest mentions stale for fresh data:\n%s", text)
	}
}

// TestFormatDigest_StaleMarked verifies degraded results carry a stale
// marker with the reading's timestamp.
func TestFormatDigest_StaleMarked(t *testing.T) {
	d := NewDispatcher(nil, nil, time.UTC, zap.NewNop()).WithClock(fixedClock)

	results := sampleResults()
	results[0].Stale = true
	text := d.FormatDigest(results)

	if !strings.Contains(text, "(stale reading from 07:55)") {
		t.Errorf("digest missing stale marker:\n%s", text)
	}
}
