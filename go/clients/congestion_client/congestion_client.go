package congestion_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/signalboard/go/clients"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrMalformedResponse is returned when the analyzer answers with a body we cannot use.
var ErrMalformedResponse = errors.New("malformed congestion response")

// BreakerConfig tunes the circuit breaker around the analyzer.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         30 * time.Second,
	}
}

// CongestionClient reads the current congestion level from the traffic analyzer API.
type CongestionClient struct {
	*clients.BaseClient
	breaker *gobreaker.CircuitBreaker
}

func NewCongestionClient(baseURL string, cfg BreakerConfig) *CongestionClient {
	client := &CongestionClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetTimeout(DefaultTimeout)
	client.SetHeader("Accept", "application/json")

	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "congestion-api",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("congestion API circuit breaker changed state")
		},
	})

	return client
}

// CurrentCongestion fetches the latest sample. Any network error, non-2xx
// status or unusable body is returned as an error; while the breaker is open
// the call fails fast with gobreaker.ErrOpenState.
func (c *CongestionClient) CurrentCongestion(ctx context.Context) (models.CongestionSample, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.Get(ctx, CurrentCongestionEndpoint)
		if err != nil {
			return nil, err
		}
		return decodeSample(body)
	})
	if err != nil {
		return models.CongestionSample{}, fmt.Errorf("fetch current congestion: %w", err)
	}
	return result.(models.CongestionSample), nil
}

func decodeSample(body []byte) (models.CongestionSample, error) {
	var raw struct {
		Level             *string  `json:"congestion_level"`
		VehiclesPerMinute *float64 `json:"vehicles_per_minute"`
		Timestamp         string   `json:"timestamp"`
		Location          string   `json:"location"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.CongestionSample{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Level == nil || *raw.Level == "" {
		return models.CongestionSample{}, fmt.Errorf("%w: missing congestion_level", ErrMalformedResponse)
	}

	sample := models.CongestionSample{
		Level:     models.CongestionLevel(*raw.Level),
		Timestamp: raw.Timestamp,
		Location:  raw.Location,
	}
	if raw.VehiclesPerMinute != nil {
		sample.VehiclesPerMinute = *raw.VehiclesPerMinute
	}
	return sample, nil
}
