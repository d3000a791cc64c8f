package domain

import (
	"fmt"
	"strings"
)

// MetricType identifies a counter family.
type MetricType string

const (
	MetricRating MetricType = "rating"
	MetricSales  MetricType = "sales"
)

// ParseMetricType parses a metric name, case-insensitively.
func ParseMetricType(s string) (MetricType, error) {
	m := MetricType(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

func (m MetricType) Valid() bool {
	return m == MetricRating || m == MetricSales
}

func (m MetricType) String() string {
	return string(m)
}

// ObjectType is the kind of content a page view refers to.
type ObjectType string

const (
	ObjectPost    ObjectType = "post"
	ObjectProduct ObjectType = "product"
)

// ParseObjectType parses an object type name, case-insensitively.
func ParseObjectType(s string) (ObjectType, error) {
	t := ObjectType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownObjectType, s)
	}
	return t, nil
}

func (t ObjectType) Valid() bool {
	return t == ObjectPost || t == ObjectProduct
}

// Metrics lists the counters a page view of this object type can move.
// Posts carry star ratings only; products also carry a sales total.
func (t ObjectType) Metrics() []MetricType {
	switch t {
	case ObjectPost:
		return []MetricType{MetricRating}
	case ObjectProduct:
		return []MetricType{MetricRating, MetricSales}
	default:
		return nil
	}
}

// SupportsMetric reports whether m is tracked for objects of type t.
func (t ObjectType) SupportsMetric(m MetricType) bool {
	for _, candidate := range t.Metrics() {
		if candidate == m {
			return true
		}
	}
	return false
}
