package httpx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_PassesThrough(t *testing.T) {
	breaker := NewCircuitBreaker(nil, "enforcer", BreakerSettings{Timeout: time.Second, MaxFailures: 3})

	require.NoError(t, breaker.Execute(func() error { return nil }))

	err := breaker.Execute(func() error { return errors.New("gateway said no") })
	assert.ErrorContains(t, err, "enforcer")
	assert.ErrorContains(t, err, "gateway said no")
	assert.Equal(t, "closed", breaker.State())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	breaker := NewCircuitBreaker(nil, "enforcer", BreakerSettings{Timeout: time.Minute, MaxFailures: 2})
	failing := errors.New("down")

	_ = breaker.Execute(func() error { return failing })
	_ = breaker.Execute(func() error { return failing })

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Equal(t, "open", breaker.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	breaker := NewCircuitBreaker(nil, "enforcer", BreakerSettings{Timeout: 20 * time.Millisecond, MaxFailures: 1})

	_ = breaker.Execute(func() error { return errors.New("down") })
	require.Equal(t, "open", breaker.State())

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, breaker.Execute(func() error { return nil }))
	assert.Equal(t, "closed", breaker.State())
}
