package domain

import "time"

// ThrottleKey identifies one throttle record. ObjectType is informational;
// uniqueness is on (Identity, ObjectID, Metric).
type ThrottleKey struct {
	Identity   Identity
	ObjectID   int64
	ObjectType ObjectType
	Metric     MetricType
}

// ThrottleRecord is the last time a visitor triggered a metric on an object.
type ThrottleRecord struct {
	ThrottleKey
	LastTriggeredAt time.Time
}

// InCooldown reports whether at falls inside the cooldown window that
// started at last.
func InCooldown(last, at time.Time, cooldown time.Duration) bool {
	return at.Sub(last) < cooldown
}
