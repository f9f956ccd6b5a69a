// Package resilience guards calls to the broker with a circuit breaker so a
// failing Kite API degrades enrichment quickly instead of stalling every request.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// State represents the state of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"    // calls pass through
	StateOpen     State = "open"      // calls are rejected
	StateHalfOpen State = "half_open" // probing for recovery
)

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
}

// DefaultConfig returns the breaker settings used for Kite quotes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the circuit rejects calls. It wraps
// ErrBrokerUnavailable so callers treat it like any other broker outage.
var ErrCircuitOpen = fmt.Errorf("circuit open: %w", errors.ErrBrokerUnavailable)

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name   string
	config Config
	log    zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	successes  int
	openedAt   time.Time
	probing    bool
	rejections int64
}

// New creates a closed breaker.
func New(name string, config Config, log zerolog.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{
		name:   name,
		config: config,
		log:    log.With().Str("breaker", name).Logger(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Do runs fn unless the circuit is open. Caller cancellation and missing or
// expired sessions do not count as failures.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	switch {
	case err == nil:
		b.recordSuccess()
	case ctx.Err() == context.Canceled,
		errors.Is(err, errors.ErrNotAuthenticated),
		errors.Is(err, errors.ErrSessionExpired):
		b.release()
	default:
		b.recordFailure()
	}
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejections++
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		// One probe at a time.
		if b.probing {
			b.rejections++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}

	event := b.log.Info()
	if to == StateOpen {
		event = b.log.Warn()
	}
	event.Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejections returns how many calls were refused while open.
func (b *Breaker) Rejections() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejections
}

// Quotes wraps a quote provider with the breaker.
func (b *Breaker) Quotes(next enrich.QuoteProvider) enrich.QuoteProvider {
	if next == nil {
		return nil
	}
	return &guardedQuotes{breaker: b, next: next}
}

type guardedQuotes struct {
	breaker *Breaker
	next    enrich.QuoteProvider
}

func (g *guardedQuotes) GetQuotes(ctx context.Context, tickers []string) (map[string]models.Quote, error) {
	var quotes map[string]models.Quote
	err := g.breaker.Do(ctx, func() error {
		var err error
		quotes, err = g.next.GetQuotes(ctx, tickers)
		return err
	})
	return quotes, err
}
