package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dmarkov/weather-notify/internal/models"
	"github.com/dmarkov/weather-notify/internal/observability"
)

// Units selects the measurement system requested from the upstream API.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
	UnitsStandard Units = "standard"
)

// Fetcher is the upstream observation source consumed by the collector.
// One outbound call per invocation, bounded by the client's timeout,
// no internal retries: retry policy belongs to the scheduling layer,
// which naturally re-fetches on the next cycle.
type Fetcher interface {
	Fetch(ctx context.Context, locationID string, units Units) (models.Observation, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// IsTransient reports whether the error is worth a later re-fetch.
// Invalid credentials and unknown locations will not heal on their own.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrLocationNotFound) {
		return false
	}
	return true
}

// OpenWeatherClient fetches current observations from the OpenWeatherMap API.
type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient creates a client with a bounded per-call timeout.
// The API key is required; a missing key is a construction-time error.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// BreakerSettings configures the optional circuit breaker around upstream calls.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// SetCircuitBreaker installs a circuit breaker so a hard upstream outage
// fails fast instead of burning the full timeout on every location.
func (c *OpenWeatherClient) SetCircuitBreaker(cfg BreakerSettings) {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "weather_api",
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

type openWeatherResponse struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// Fetch retrieves the current observation for a location. Exactly one
// outbound call; errors map onto the package sentinels.
func (c *OpenWeatherClient) Fetch(ctx context.Context, locationID string, units Units) (models.Observation, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, locationID, units)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, locationID, units)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.Observation{}, fmt.Errorf("%w: circuit open", ErrUpstreamFailure)
		}
		return models.Observation{}, err
	}
	return result.(models.Observation), nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, locationID string, units Units) (models.Observation, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, locationID, units)
	if err != nil {
		observability.FetchesTotal.WithLabelValues("error").Inc()
		return models.Observation{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.FetchesTotal.WithLabelValues("error").Inc()
		observability.FetchDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Observation{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.Observation{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.FetchesTotal.WithLabelValues(status).Inc()
	observability.FetchDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.Observation{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Observation{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Observation{}, fmt.Errorf("parse response: %w", err)
	}

	return mapResponse(apiResp), nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, locationID string, units Units) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	if units == "" {
		units = UnitsMetric
	}
	params := url.Values{}
	params.Set("q", locationID)
	params.Set("appid", c.apiKey)
	params.Set("units", string(units))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func mapResponse(apiResp openWeatherResponse) models.Observation {
	description := ""
	if len(apiResp.Weather) > 0 {
		description = apiResp.Weather[0].Main
		if apiResp.Weather[0].Description != "" {
			description = apiResp.Weather[0].Description
		}
	}

	return models.Observation{
		Temperature: apiResp.Main.Temp,
		FeelsLike:   apiResp.Main.FeelsLike,
		Humidity:    apiResp.Main.Humidity,
		WindSpeed:   apiResp.Wind.Speed,
		Description: description,
		FetchedAt:   time.Now().UTC(),
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a probe request against a known location to verify
// the configured key. Called once at startup; failure aborts the process.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London", UnitsMetric)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
