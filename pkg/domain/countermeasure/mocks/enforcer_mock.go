package mocks

import (
	"context"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/stretchr/testify/mock"
)

type Enforcer struct {
	mock.Mock
}

func (m *Enforcer) Block(ctx context.Context, sourceID string, duration time.Duration) error {
	args := m.Called(ctx, sourceID, duration)
	return args.Error(0)
}

func (m *Enforcer) Throttle(ctx context.Context, sourceID string, delayMs int) error {
	args := m.Called(ctx, sourceID, delayMs)
	return args.Error(0)
}

func (m *Enforcer) Alert(ctx context.Context, payload countermeasure.AlertPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *Enforcer) InvalidateSession(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

func (m *Enforcer) Release(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

func NewEnforcer(t interface {
	mock.TestingT
	Cleanup(func())
}) *Enforcer {
	m := &Enforcer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
