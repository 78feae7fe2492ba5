package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testAPIKey = "0123456789abcdef"

const sampleResponse = `{
	"main": {"temp": 4.8, "feels_like": 1.2, "humidity": 87},
	"weather": [{"main": "Snow", "description": "light snow"}],
	"wind": {"speed": 5.1},
	"name": "Moscow"
}`

// TestNewOpenWeatherClient_KeyValidation verifies a missing or obviously
// invalid key is a construction-time error.
func TestNewOpenWeatherClient_KeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "empty key", key: "", wantErr: true},
		{name: "too short", key: "abc", wantErr: true},
		{name: "plausible key", key: testAPIKey, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOpenWeatherClient(tc.key, "http://example.invalid", time.Second)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewOpenWeatherClient() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr && !errors.Is(err, ErrInvalidAPIKey) {
				t.Fatalf("error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}

// TestFetch_Success verifies payload mapping onto the observation.
func TestFetch_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	obs, err := c.Fetch(context.Background(), "Moscow", UnitsMetric)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if obs.Temperature != 4.8 {
		t.Errorf("Temperature = %v, want 4.8", obs.Temperature)
	}
	if obs.FeelsLike != 1.2 {
		t.Errorf("FeelsLike = %v, want 1.2", obs.FeelsLike)
	}
	if obs.Humidity != 87 {
		t.Errorf("Humidity = %v, want 87", obs.Humidity)
	}
	if obs.WindSpeed != 5.1 {
		t.Errorf("WindSpeed = %v, want 5.1", obs.WindSpeed)
	}
	if obs.Description != "light snow" {
		t.Errorf("Description = %q, want %q", obs.Description, "light snow")
	}
	if obs.FetchedAt.IsZero() {
		t.Error("FetchedAt is zero")
	}
	for _, want := range []string{"q=Moscow", "units=metric"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

// TestFetch_ErrorMapping verifies HTTP status codes map onto the sentinel
// errors with the right transient/permanent classification.
func TestFetch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantSentinel  error
		wantTransient bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantSentinel: ErrInvalidAPIKey, wantTransient: false},
		{name: "not found", status: http.StatusNotFound, wantSentinel: ErrLocationNotFound, wantTransient: false},
		{name: "rate limited", status: http.StatusTooManyRequests, wantSentinel: ErrRateLimited, wantTransient: true},
		{name: "server error", status: http.StatusInternalServerError, wantSentinel: ErrUpstreamFailure, wantTransient: true},
		{name: "bad gateway", status: http.StatusBadGateway, wantSentinel: ErrUpstreamFailure, wantTransient: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			c, err := NewOpenWeatherClient(testAPIKey, server.URL, time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			_, err = c.Fetch(context.Background(), "Moscow", UnitsMetric)
			if !errors.Is(err, tc.wantSentinel) {
				t.Fatalf("Fetch() error = %v, want %v", err, tc.wantSentinel)
			}
			if IsTransient(err) != tc.wantTransient {
				t.Fatalf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tc.wantTransient)
			}
		})
	}
}

// TestFetch_MalformedPayload verifies parse failures surface as errors.
func TestFetch_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	if _, err := c.Fetch(context.Background(), "Moscow", UnitsMetric); err == nil {
		t.Fatal("Fetch() error = nil, want parse error")
	}
}

// TestFetch_CircuitBreakerOpens verifies consecutive failures open the
// breaker so further calls fail fast as upstream failures.
func TestFetch_CircuitBreakerOpens(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	c.SetCircuitBreaker(BreakerSettings{MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), "Moscow", UnitsMetric); err == nil {
			t.Fatalf("Fetch() #%d error = nil, want failure", i+1)
		}
	}

	_, err = c.Fetch(context.Background(), "Moscow", UnitsMetric)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("Fetch() with open breaker error = %v, want ErrUpstreamFailure", err)
	}
	if calls != 2 {
		t.Fatalf("upstream calls = %d, want 2 (breaker short-circuits the third)", calls)
	}
}

// TestCategorizeError maps sentinels onto stable metric labels.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorCategoryTimeout},
		{name: "invalid key", err: ErrInvalidAPIKey, want: ErrorCategoryInvalidAPIKey},
		{name: "not found", err: ErrLocationNotFound, want: ErrorCategoryLocationNotFound},
		{name: "rate limited", err: ErrRateLimited, want: ErrorCategoryRateLimited},
		{name: "upstream", err: ErrUpstreamFailure, want: ErrorCategoryUpstream5xx},
		{name: "parse", err: errors.New("parse response: bad"), want: ErrorCategoryParsing},
		{name: "unknown", err: errors.New("mystery"), want: ErrorCategoryUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CategorizeError(tc.err); got != tc.want {
				t.Fatalf("CategorizeError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
