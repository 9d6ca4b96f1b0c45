package enforcer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"golang.org/x/sync/errgroup"
)

var ErrEnforcerUnavailable = errors.New("enforcer unavailable")

// Multi fans every call out to all enforcers concurrently; alerters only
// receive alerts. A call fails if any member fails, and the returned error
// joins every member failure.
type Multi struct {
	enforcers []countermeasure.Enforcer
	alerters  []Alerter
}

var (
	_ countermeasure.Enforcer           = (*Multi)(nil)
	_ countermeasure.SessionInvalidator = (*Multi)(nil)
	_ countermeasure.Releaser           = (*Multi)(nil)
)

func NewMulti(enforcers []countermeasure.Enforcer, alerters ...Alerter) *Multi {
	return &Multi{enforcers: enforcers, alerters: alerters}
}

func (m *Multi) Block(ctx context.Context, sourceID string, duration time.Duration) error {
	return m.fanOut(ctx, func(ctx context.Context, e countermeasure.Enforcer) error {
		return e.Block(ctx, sourceID, duration)
	})
}

func (m *Multi) Throttle(ctx context.Context, sourceID string, delayMs int) error {
	return m.fanOut(ctx, func(ctx context.Context, e countermeasure.Enforcer) error {
		return e.Throttle(ctx, sourceID, delayMs)
	})
}

func (m *Multi) Alert(ctx context.Context, payload countermeasure.AlertPayload) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	var g errgroup.Group
	for _, e := range m.enforcers {
		g.Go(func() error {
			collect(e.Alert(ctx, payload))
			return nil
		})
	}
	for _, a := range m.alerters {
		g.Go(func() error {
			collect(a.Alert(ctx, payload))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (m *Multi) InvalidateSession(ctx context.Context, sourceID string) error {
	return m.fanOut(ctx, func(ctx context.Context, e countermeasure.Enforcer) error {
		if inv, ok := e.(countermeasure.SessionInvalidator); ok {
			return inv.InvalidateSession(ctx, sourceID)
		}
		return nil
	})
}

func (m *Multi) Release(ctx context.Context, sourceID string) error {
	return m.fanOut(ctx, func(ctx context.Context, e countermeasure.Enforcer) error {
		if r, ok := e.(countermeasure.Releaser); ok {
			return r.Release(ctx, sourceID)
		}
		return nil
	})
}

func (m *Multi) fanOut(ctx context.Context, call func(context.Context, countermeasure.Enforcer) error) error {
	errs := make([]error, len(m.enforcers))
	var g errgroup.Group
	for i, e := range m.enforcers {
		g.Go(func() error {
			if err := call(ctx, e); err != nil {
				errs[i] = fmt.Errorf("%T: %w", e, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
