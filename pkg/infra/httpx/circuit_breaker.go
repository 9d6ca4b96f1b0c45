package httpx

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned without calling fn while the breaker is open
// or the half-open probe budget is spent.
var ErrBreakerOpen = errors.New("circuit breaker open")

type CircuitBreaker interface {
	Execute(fn func() error) error
	State() string
}

type BreakerSettings struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	HalfOpenMax uint32        `mapstructure:"half_open_max"`
}

type circuitBreakerWrapper struct {
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(logger *logrus.Logger, name string, s BreakerSettings) CircuitBreaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.HalfOpenMax == 0 {
		s.HalfOpenMax = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMax,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &circuitBreakerWrapper{
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *circuitBreakerWrapper) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("breaker (%s): %w", g.breaker.Name(), ErrBreakerOpen)
	}
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", g.breaker.Name(), err)
	}
	return nil
}

func (g *circuitBreakerWrapper) State() string {
	return g.breaker.State().String()
}
