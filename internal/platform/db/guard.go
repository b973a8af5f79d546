package db

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// GuardConfig configures the circuit breaker in front of live writes.
type GuardConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
	// OnStateChange is optional; main wires it to the breaker-state gauge.
	OnStateChange func(state string)
}

// Guard short-circuits live writes after repeated connectivity failures so
// that handlers stage immediately instead of waiting on dial timeouts. Only
// KindUnavailable errors count against the breaker.
type Guard struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func NewGuard(cfg GuardConfig, logger zerolog.Logger) *Guard {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err) != KindUnavailable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("database breaker state changed")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(to.String())
			}
		},
	}
	return &Guard{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Do runs fn through the breaker. A nil Guard calls fn directly.
func (g *Guard) Do(fn func() error) error {
	if g == nil {
		return fn()
	}
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// State returns "closed", "half-open", "open", or "disabled" for a nil Guard.
func (g *Guard) State() string {
	if g == nil {
		return "disabled"
	}
	return g.cb.State().String()
}
