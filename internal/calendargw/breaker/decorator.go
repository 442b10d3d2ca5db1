// Package breaker wraps a calendargw.Gateway with a per-calendar-account
// circuit breaker, grounded on internal/engine/runtime/executor.go's
// getBreaker/gobreaker.Settings pattern — generalized here from
// per-plugin-engine breakers to per-account breakers so a degraded
// provider doesn't retry-storm during a scheduling run (§4.7).
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned in place of the wrapped gateway's error when
// an account's breaker is open.
var ErrCircuitOpen = errors.New("calendargw: circuit open for account")

// Config mirrors the teacher's ExecutorConfig, scoped to calendar accounts.
type Config struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns sensible defaults matching the teacher's engine
// executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Gateway decorates a calendargw.Gateway with a breaker per account (keyed
// by user id, since each user's calendar account is independent).
type Gateway struct {
	next   calendargw.Gateway
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[uuid.UUID]*gobreaker.CircuitBreaker[any]
}

func NewGateway(next calendargw.Gateway, config Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		next:     next,
		config:   config,
		logger:   logger,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker[any]),
	}
}

func (g *Gateway) getBreaker(userID uuid.UUID) *gobreaker.CircuitBreaker[any] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, exists := g.breakers[userID]; exists {
		return b
	}

	settings := gobreaker.Settings{
		Name:        userID.String(),
		MaxRequests: g.config.MaxRequests,
		Interval:    g.config.Interval,
		Timeout:     g.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Info("calendar account circuit breaker state changed",
				"account_user_id", name, "from", from.String(), "to", to.String())
		},
	}

	b := gobreaker.NewCircuitBreaker[any](settings)
	g.breakers[userID] = b
	return b
}

func (g *Gateway) execute(userID uuid.UUID, fn func() (any, error)) (any, error) {
	result, err := g.getBreaker(userID).Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, ErrCircuitOpen
	}
	return result, err
}

func (g *Gateway) ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]calendargw.Event, error) {
	result, err := g.execute(userID, func() (any, error) {
		return g.next.ListEvents(ctx, userID, timeMin, timeMax)
	})
	if err != nil {
		return nil, err
	}
	return result.([]calendargw.Event), nil
}

func (g *Gateway) CreateEvent(ctx context.Context, userID uuid.UUID, params calendargw.CreateEventParams) (calendargw.Event, error) {
	result, err := g.execute(userID, func() (any, error) {
		return g.next.CreateEvent(ctx, userID, params)
	})
	if err != nil {
		return calendargw.Event{}, err
	}
	return result.(calendargw.Event), nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, userID uuid.UUID, params calendargw.DeleteEventParams) error {
	_, err := g.execute(userID, func() (any, error) {
		return nil, g.next.DeleteEvent(ctx, userID, params)
	})
	return err
}

func (g *Gateway) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (calendargw.Event, error) {
	result, err := g.execute(userID, func() (any, error) {
		return g.next.GetEvent(ctx, userID, eventID)
	})
	if err != nil {
		return calendargw.Event{}, err
	}
	return result.(calendargw.Event), nil
}

// State reports the current breaker state for an account, or "closed" if
// no calls have been made yet (matching the teacher's
// GetCircuitBreakerState idiom).
func (g *Gateway) State(userID uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, exists := g.breakers[userID]; exists {
		return b.State().String()
	}
	return gobreaker.StateClosed.String()
}

var _ calendargw.Gateway = (*Gateway)(nil)
