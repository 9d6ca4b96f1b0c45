package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type Guard struct {
	mock.Mock
}

func (m *Guard) IsBlocked(ctx context.Context, sourceID string) (bool, error) {
	args := m.Called(ctx, sourceID)
	return args.Bool(0), args.Error(1)
}

func (m *Guard) ThrottleDelay(ctx context.Context, sourceID string) (time.Duration, error) {
	args := m.Called(ctx, sourceID)
	delay, _ := args.Get(0).(time.Duration)
	return delay, args.Error(1)
}

func NewGuard(t interface {
	mock.TestingT
	Cleanup(func())
}) *Guard {
	m := &Guard{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
