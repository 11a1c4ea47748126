package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker rejects publishes
var ErrUnavailable = errors.New("ledger queue unavailable")

// BreakerConfig holds circuit breaker settings for the publisher
type BreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval after which closed-state counts are cleared
	Interval time.Duration
	// Timeout spent open before probing again
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32
}

// DefaultBreakerConfig returns default circuit breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// RedisPublisher appends mint requests to a Redis stream
type RedisPublisher struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	breaker *gobreaker.CircuitBreaker
}

// NewRedisClient creates a client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisPublisher creates a stream publisher guarded by a circuit breaker
func NewRedisPublisher(client *redis.Client, stream string, cfg BreakerConfig) *RedisPublisher {
	name := "ledger-" + stream
	monitoring.SetCircuitBreakerState(name, breakerStateValue(gobreaker.StateClosed))

	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: 100000,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				monitoring.SetCircuitBreakerState(name, breakerStateValue(to))
				log.Info().
					Str("circuit_breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		}),
	}
}

// Publish appends req to the stream. While the circuit is open it fails fast.
func (p *RedisPublisher) Publish(ctx context.Context, req MintRequest) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: streamValues(req),
		}).Result()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrUnavailable
		}
		return fmt.Errorf("failed to publish mint request: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// State returns the circuit breaker state
func (p *RedisPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func streamValues(req MintRequest) map[string]interface{} {
	values := map[string]interface{}{
		"token_id":     req.TokenID.String(),
		"user_id":      req.UserID.String(),
		"amount":       req.Amount.String(),
		"type":         string(req.Type),
		"requested_at": req.RequestedAt.Format(time.RFC3339Nano),
	}
	if req.ContributionID != nil {
		values["contribution_id"] = req.ContributionID.String()
	}
	return values
}

// breakerStateValue maps a breaker state to the gauge encoding
func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
