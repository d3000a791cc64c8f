package domain

import "errors"

var (
	// ErrNoIdentity is returned when a visitor identity cannot be derived.
	ErrNoIdentity = errors.New("visitor identity unavailable")

	ErrUnknownMetric     = errors.New("unknown metric type")
	ErrUnknownObjectType = errors.New("unknown object type")
	ErrObjectNotFound    = errors.New("object not found")

	// ErrThresholdReached is returned by counter writes guarded by a threshold.
	ErrThresholdReached = errors.New("counter threshold reached")

	// ErrCooldownActive is returned when a throttle claim loses to an
	// existing record inside its cooldown window.
	ErrCooldownActive = errors.New("cooldown active")

	// ErrRetryable marks persistence read failures. Callers deny and let the
	// next request try again.
	ErrRetryable = errors.New("temporarily unavailable")
)
