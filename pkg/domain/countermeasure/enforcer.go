package countermeasure

import (
	"context"
	"time"
)

// Enforcer is the external substrate (gateway, firewall, notification system)
// that applies countermeasures. A zero duration on Block means permanent.
//
//go:generate mockery --name=Enforcer --dir=. --output=./mocks --filename=enforcer_mock.go --case=underscore --with-expecter
type Enforcer interface {
	Block(ctx context.Context, sourceID string, duration time.Duration) error
	Throttle(ctx context.Context, sourceID string, delayMs int) error
	Alert(ctx context.Context, payload AlertPayload) error
}

// SessionInvalidator is an optional Enforcer capability.
type SessionInvalidator interface {
	InvalidateSession(ctx context.Context, sourceID string) error
}

// Releaser is an optional Enforcer capability used after manual review.
type Releaser interface {
	Release(ctx context.Context, sourceID string) error
}

type Status string

const (
	StatusApplied   Status = "applied"
	StatusRefreshed Status = "refreshed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome is the per-countermeasure result reported back to the classifier.
type Outcome struct {
	Countermeasure Countermeasure `json:"countermeasure"`
	Status         Status         `json:"status"`
	Attempts       int            `json:"attempts"`
	ExpiresAt      time.Time      `json:"expires_at,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

type ActiveStatus string

const (
	ActiveStatusActive  ActiveStatus = "active"
	ActiveStatusPending ActiveStatus = "pending"
)

// Active is an entry of a profile's active-countermeasure set. A zero
// ExpiresAt never expires.
type Active struct {
	Countermeasure Countermeasure `json:"countermeasure"`
	Status         ActiveStatus   `json:"status"`
	IssuedAt       time.Time      `json:"issued_at"`
	RefreshedAt    time.Time      `json:"refreshed_at"`
	ExpiresAt      time.Time      `json:"expires_at,omitempty"`
	Refreshes      int            `json:"refreshes"`
}

func (a Active) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
