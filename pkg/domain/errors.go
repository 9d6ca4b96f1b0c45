package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEntityNotFound      *notFoundError
	ErrConfiguration       *configurationError
	ErrEnforcement         *enforcementError
	ErrScanFailure         = errors.New("input could not be scanned")
	ErrLogUnavailable      = errors.New("incident log unavailable")
	ErrHoneypotInactive    = errors.New("honeypot is not active")
	ErrInvalidSeverity     = errors.New("invalid severity")
	ErrInvalidHoneypotKind = errors.New("invalid honeypot kind")
)

type notFoundError struct {
	EntityType string
	ID         string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s with ID '%s' not found", e.EntityType, e.ID)
}

func NewNotFoundError(entityType string, id string) error {
	return &notFoundError{
		EntityType: entityType,
		ID:         id,
	}
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFoundError *notFoundError
	return errors.As(err, &notFoundError)
}

// configurationError is fatal at startup: the engine refuses to run with an
// incomplete ruleset or severity table.
type configurationError struct {
	Component string
	Reason    string
	Err       error
}

func (e *configurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s configuration: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s configuration: %s", e.Component, e.Reason)
}

func (e *configurationError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(component, reason string, err error) error {
	return &configurationError{
		Component: component,
		Reason:    reason,
		Err:       err,
	}
}

func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var configurationError *configurationError
	return errors.As(err, &configurationError)
}

type enforcementError struct {
	SourceID string
	Action   string
	Err      error
}

func (e *enforcementError) Error() string {
	return fmt.Sprintf("enforcement %s for source %s failed: %v", e.Action, e.SourceID, e.Err)
}

func (e *enforcementError) Unwrap() error {
	return e.Err
}

func NewEnforcementError(sourceID, action string, err error) error {
	return &enforcementError{
		SourceID: sourceID,
		Action:   action,
		Err:      err,
	}
}

func IsEnforcementError(err error) bool {
	if err == nil {
		return false
	}
	var enforcementError *enforcementError
	return errors.As(err, &enforcementError)
}
