// Package resilience protects calls to remote collaborators (embedding and
// LLM APIs) with a rate limiter and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Config holds the guard configuration.
type Config struct {
	// Name labels the breaker (shows up in state-change logs).
	Name string

	// RequestsPerSecond limits call rate. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Default: 1.
	Burst int

	// MaxFailures is the number of consecutive failures that trips the
	// circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before half-opening.
	// Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of trial calls allowed while
	// half-open. Default: 2.
	HalfOpenMaxSuccesses uint32

	// OnStateChange is called on breaker transitions (optional).
	OnStateChange func(name, from, to string)
}

// Guard runs functions through a limiter and a breaker.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard creates a guard. Zero config fields take their defaults.
func NewGuard(cfg Config) *Guard {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	g := &Guard{}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	maxFailures := cfg.MaxFailures
	onChange := cfg.OnStateChange
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(name, from.String(), to.String())
			}
		},
	})
	return g
}

// Execute waits for the limiter, then runs fn through the breaker.
// An open circuit yields types.ErrCircuitOpen.
func (g *Guard) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.ErrCircuitOpen
	}
	return result, err
}

// State returns "closed", "open" or "half-open".
func (g *Guard) State() string {
	return g.breaker.State().String()
}
