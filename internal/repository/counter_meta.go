package repository

import (
	"strconv"

	"kksr-counter/internal/domain"
)

// DecodeCounterMeta builds a counter state from stored meta values. Current
// keys win over legacy ones. The average is derived from total and count;
// the stored average is only the display value.
func DecodeCounterMeta(objectID int64, meta map[string]string) domain.CounterState {
	state := domain.CounterState{ObjectID: objectID}

	state.RatingCount = parseInt(firstOf(meta, domain.MetaRatingCount, domain.MetaLegacyRatingCount))
	state.RatingTotal = parseFloat(firstOf(meta, domain.MetaRatingTotal, domain.MetaLegacyRatingTotal))
	if state.RatingCount > 0 {
		if state.RatingTotal == 0 {
			// Rows written without a total
			avg := parseFloat(firstOf(meta, domain.MetaRatingAverage, domain.MetaLegacyRatingAverage))
			state.RatingTotal = avg * float64(state.RatingCount)
		}
		state.RatingAverage = state.RatingTotal / float64(state.RatingCount)
	}

	state.Sales = parseInt(firstOf(meta, domain.MetaSales, domain.MetaLegacySales))
	state.Seeded = meta[domain.MetaSeeded] == "1"

	return state
}

// EncodeCounterMeta returns the meta values to write and the keys to delete
// to move stored counters from prev to next.
func EncodeCounterMeta(prev, next domain.CounterState) (set map[string]string, del []string) {
	set = make(map[string]string)

	if next.RatingCount != prev.RatingCount || next.RatingTotal != prev.RatingTotal {
		count := strconv.FormatInt(next.RatingCount, 10)
		avg := formatFloat(next.DisplayAverage())
		total := formatFloat(next.RatingTotal)

		set[domain.MetaRatingCount] = count
		set[domain.MetaRatingAverage] = avg
		set[domain.MetaRatingTotal] = total
		set[domain.MetaLegacyRatingCount] = count
		set[domain.MetaLegacyRatingAverage] = avg
		set[domain.MetaLegacyRatingTotal] = total
	}

	if next.Sales != prev.Sales {
		sales := strconv.FormatInt(next.Sales, 10)
		set[domain.MetaSales] = sales
		set[domain.MetaLegacySales] = sales
	}

	switch {
	case next.Seeded && !prev.Seeded:
		set[domain.MetaSeeded] = "1"
	case !next.Seeded && prev.Seeded:
		del = append(del, domain.MetaSeeded)
	}

	return set, del
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some writers store counts as floats
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
