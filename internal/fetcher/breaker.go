package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// breaker trips after consecutive failures of one source so a dead upstream
// is not hammered on every request.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string) *breaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *breaker) run(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrSourceUnavailable
	}
	return err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
