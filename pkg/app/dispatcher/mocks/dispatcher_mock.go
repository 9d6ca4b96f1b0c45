package mocks

import (
	"context"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/dispatcher"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/stretchr/testify/mock"
)

type Dispatcher struct {
	mock.Mock
}

func (m *Dispatcher) Dispatch(ctx context.Context, req dispatcher.Request) []countermeasure.Outcome {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, dispatcher.Request) []countermeasure.Outcome); ok {
		return fn(ctx, req)
	}
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]countermeasure.Outcome)
}

func (m *Dispatcher) Release(ctx context.Context, p *profile.AttackerProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *Dispatcher) Degraded() []countermeasure.Kind {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]countermeasure.Kind)
}

func NewDispatcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *Dispatcher {
	m := &Dispatcher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
