// Package resilience wraps outbound calls in retry and circuit-breaker
// policies so a flapping or dead Gateway fails fast instead of hanging
// every sync attempt.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen reports a call rejected because the named breaker is
// open. It is never retried.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes retry and breaker behaviour. Zero values take defaults.
type Config struct {
	RetryEnabled   bool
	MaxAttempts    int           // total attempts including the first
	InitialDelay   time.Duration // first retry delay
	Strategy       string        // "exponential" or "linear"
	Multiplier     float64       // exponential growth factor
	MaxDelay       time.Duration // delay cap
	BreakerEnabled bool
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // open -> half-open
	HalfOpenMax      uint32        // probe calls allowed while half-open

	// Retryable classifies errors worth retrying. Nil means retry
	// everything except permanent and breaker-rejected errors.
	Retryable func(error) bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
	if c.Strategy == "" {
		c.Strategy = "exponential"
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.HalfOpenMax == 0 {
		c.HalfOpenMax = 1
	}
	return c
}

// Executor runs operations under one breaker per dependency name plus a
// shared retry policy.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *Executor) breaker(name string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[name]; ok {
		return cb
	}
	threshold := uint32(e.cfg.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: e.cfg.HalfOpenMax,
		Timeout:     e.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[name] = cb
	return cb
}

// Do runs op under the named breaker, retrying retryable failures per the
// configured strategy. The context cancels both waits and further
// attempts.
func (e *Executor) Do(ctx context.Context, name string, op func() error) error {
	attempt := func() error {
		if !e.cfg.BreakerEnabled {
			return op()
		}
		_, err := e.breaker(name).Execute(func() (any, error) {
			return nil, op()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, name))
		}
		return err
	}

	if !e.cfg.RetryEnabled {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		return err
	}

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := attempt()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if e.cfg.Retryable != nil && !e.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("operation failed, will retry", "name", name, "attempt", attempts, "err", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), uint64(e.cfg.MaxAttempts-1)), ctx))
	return err
}

func (e *Executor) newBackOff() backoff.BackOff {
	if e.cfg.Strategy == "linear" {
		return &linearBackOff{initial: e.cfg.InitialDelay, max: e.cfg.MaxDelay}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialDelay
	bo.Multiplier = e.cfg.Multiplier
	bo.MaxInterval = e.cfg.MaxDelay
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	return bo
}

// State reports the named breaker's state as "closed", "half-open" or
// "open". Unknown names report "closed".
func (e *Executor) State(name string) string {
	e.mu.Lock()
	cb, ok := e.breakers[name]
	e.mu.Unlock()
	if !ok || !e.cfg.BreakerEnabled {
		return "closed"
	}
	switch cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// linearBackOff grows the delay by the initial amount each attempt,
// capped at max.
type linearBackOff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func (l *linearBackOff) NextBackOff() time.Duration {
	if l.next == 0 {
		l.next = l.initial
	} else {
		l.next += l.initial
	}
	if l.next > l.max {
		l.next = l.max
	}
	return l.next
}

func (l *linearBackOff) Reset() { l.next = 0 }
