package domain

import (
	"math"
	"time"
)

// Object is a post or product known to the counter service.
type Object struct {
	ID        int64      `json:"id"`
	Type      ObjectType `json:"type"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// CounterState is the aggregate counters of one object.
type CounterState struct {
	ObjectID      int64   `json:"object_id"`
	RatingCount   int64   `json:"rating_count"`
	RatingTotal   float64 `json:"rating_total"`
	RatingAverage float64 `json:"rating_average"`
	Sales         int64   `json:"total_sales"`
	// Seeded is true while the rating counters still hold values written by
	// the seed path and no traffic increment has touched them since.
	Seeded bool `json:"seeded"`
}

// Count returns the counter the threshold of metric m is compared with.
func (c CounterState) Count(m MetricType) int64 {
	if m == MetricSales {
		return c.Sales
	}
	return c.RatingCount
}

// DisplayAverage is the rating average rounded to one decimal place, the
// precision rating widgets expect.
func (c CounterState) DisplayAverage() float64 {
	return RoundTo(c.RatingAverage, 1)
}

// AddRating returns the state after one more rating of value. The average is
// derived from the running total, never from average*count.
func (c CounterState) AddRating(value int) CounterState {
	next := c
	next.RatingTotal = c.RatingTotal + float64(value)
	next.RatingCount = c.RatingCount + 1
	next.RatingAverage = next.RatingTotal / float64(next.RatingCount)
	next.Seeded = false
	return next
}

// AddSale returns the state after one more sale.
func (c CounterState) AddSale() CounterState {
	next := c
	next.Sales = c.Sales + 1
	return next
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Meta keys read by rating widgets and shop templates. Each family is
// written twice: the current keys and the legacy duplicates.
const (
	MetaRatingCount   = "_kksr_count_default"
	MetaRatingAverage = "_kksr_avg_default"
	MetaRatingTotal   = "_kksr_ratings_default"

	MetaLegacyRatingCount   = "_kksr_casts"
	MetaLegacyRatingAverage = "_kksr_avg"
	MetaLegacyRatingTotal   = "_kksr_ratings"

	MetaSales       = "total_sales"
	MetaLegacySales = "_kksr_total_sales"

	MetaSeeded = "_kksr_faker_seeded"
)

// CounterMetaKeys lists every meta key owned by the counter service.
var CounterMetaKeys = []string{
	MetaRatingCount, MetaRatingAverage, MetaRatingTotal,
	MetaLegacyRatingCount, MetaLegacyRatingAverage, MetaLegacyRatingTotal,
	MetaSales, MetaLegacySales,
	MetaSeeded,
}
