package domain

import "time"

// SettingsOptionName is the options row holding the settings document.
const SettingsOptionName = "kksr_faker_settings"

// Settings is the resolved configuration read by the increment engine and
// the seeder. Field names match the stored JSON document.
type Settings struct {
	RatingAutoIncrement bool `json:"rating_auto_increment"`
	RatingCooldownDays  int  `json:"rating_cooldown_days"`
	RatingThreshold     int  `json:"rating_threshold"`
	RatingMinStars      int  `json:"rating_min_stars"`
	RatingMaxStars      int  `json:"rating_max_stars"`

	SalesAutoIncrement bool `json:"sales_auto_increment"`
	SalesCooldownDays  int  `json:"sales_cooldown_days"`
	SalesThreshold     int  `json:"sales_threshold"`

	// Seed path
	MinVotes       int     `json:"min_votes"`
	MaxVotes       int     `json:"max_votes"`
	SeedMinStars   float64 `json:"seed_min_stars"`
	SeedMaxStars   float64 `json:"seed_max_stars"`
	ThresholdVotes int     `json:"threshold_votes"`
}

// DefaultSettings returns the values used for every missing key.
func DefaultSettings() Settings {
	return Settings{
		RatingAutoIncrement: true,
		RatingCooldownDays:  7,
		RatingThreshold:     100,
		RatingMinStars:      4,
		RatingMaxStars:      5,

		SalesAutoIncrement: true,
		SalesCooldownDays:  7,
		SalesThreshold:     50,

		MinVotes:       100,
		MaxVotes:       500,
		SeedMinStars:   3.0,
		SeedMaxStars:   5.0,
		ThresholdVotes: 100,
	}
}

// MetricSettings is the per-metric view of Settings.
type MetricSettings struct {
	AutoIncrement bool
	Cooldown      time.Duration
	// Threshold of 0 never blocks.
	Threshold int64
}

// ForMetric returns the settings governing metric m.
func (s Settings) ForMetric(m MetricType) MetricSettings {
	switch m {
	case MetricSales:
		return MetricSettings{
			AutoIncrement: s.SalesAutoIncrement,
			Cooldown:      days(s.SalesCooldownDays),
			Threshold:     int64(s.SalesThreshold),
		}
	default:
		return MetricSettings{
			AutoIncrement: s.RatingAutoIncrement,
			Cooldown:      days(s.RatingCooldownDays),
			Threshold:     int64(s.RatingThreshold),
		}
	}
}

// Blocks reports whether count has reached the threshold.
func (ms MetricSettings) Blocks(count int64) bool {
	return ms.Threshold != 0 && count >= ms.Threshold
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Normalize clamps every field into its valid domain and orders min/max pairs.
func (s Settings) Normalize() Settings {
	s.RatingCooldownDays = atLeast(s.RatingCooldownDays, 1)
	s.SalesCooldownDays = atLeast(s.SalesCooldownDays, 1)
	s.RatingThreshold = atLeast(s.RatingThreshold, 0)
	s.SalesThreshold = atLeast(s.SalesThreshold, 0)
	s.ThresholdVotes = atLeast(s.ThresholdVotes, 0)

	s.RatingMinStars = clampInt(s.RatingMinStars, 1, 5)
	s.RatingMaxStars = clampInt(s.RatingMaxStars, 1, 5)
	if s.RatingMinStars > s.RatingMaxStars {
		s.RatingMinStars, s.RatingMaxStars = s.RatingMaxStars, s.RatingMinStars
	}

	s.MinVotes = atLeast(s.MinVotes, 0)
	s.MaxVotes = atLeast(s.MaxVotes, 0)
	if s.MinVotes > s.MaxVotes {
		s.MinVotes, s.MaxVotes = s.MaxVotes, s.MinVotes
	}

	s.SeedMinStars = clampFloat(s.SeedMinStars, 1, 5)
	s.SeedMaxStars = clampFloat(s.SeedMaxStars, 1, 5)
	if s.SeedMinStars > s.SeedMaxStars {
		s.SeedMinStars, s.SeedMaxStars = s.SeedMaxStars, s.SeedMinStars
	}

	return s
}

// SettingsPatch is a partial settings document. Nil fields keep their
// current value; it is also how stored documents with missing keys decode.
type SettingsPatch struct {
	RatingAutoIncrement *bool `json:"rating_auto_increment,omitempty"`
	RatingCooldownDays  *int  `json:"rating_cooldown_days,omitempty" validate:"omitempty,gte=1"`
	RatingThreshold     *int  `json:"rating_threshold,omitempty" validate:"omitempty,gte=0"`
	RatingMinStars      *int  `json:"rating_min_stars,omitempty" validate:"omitempty,min=1,max=5"`
	RatingMaxStars      *int  `json:"rating_max_stars,omitempty" validate:"omitempty,min=1,max=5"`

	SalesAutoIncrement *bool `json:"sales_auto_increment,omitempty"`
	SalesCooldownDays  *int  `json:"sales_cooldown_days,omitempty" validate:"omitempty,gte=1"`
	SalesThreshold     *int  `json:"sales_threshold,omitempty" validate:"omitempty,gte=0"`

	MinVotes       *int     `json:"min_votes,omitempty" validate:"omitempty,gte=0"`
	MaxVotes       *int     `json:"max_votes,omitempty" validate:"omitempty,gte=0"`
	SeedMinStars   *float64 `json:"seed_min_stars,omitempty" validate:"omitempty,gte=1,lte=5"`
	SeedMaxStars   *float64 `json:"seed_max_stars,omitempty" validate:"omitempty,gte=1,lte=5"`
	ThresholdVotes *int     `json:"threshold_votes,omitempty" validate:"omitempty,gte=0"`
}

// ApplyTo overlays the non-nil fields of p onto base.
func (p SettingsPatch) ApplyTo(base Settings) Settings {
	setBool(&base.RatingAutoIncrement, p.RatingAutoIncrement)
	setInt(&base.RatingCooldownDays, p.RatingCooldownDays)
	setInt(&base.RatingThreshold, p.RatingThreshold)
	setInt(&base.RatingMinStars, p.RatingMinStars)
	setInt(&base.RatingMaxStars, p.RatingMaxStars)

	setBool(&base.SalesAutoIncrement, p.SalesAutoIncrement)
	setInt(&base.SalesCooldownDays, p.SalesCooldownDays)
	setInt(&base.SalesThreshold, p.SalesThreshold)

	setInt(&base.MinVotes, p.MinVotes)
	setInt(&base.MaxVotes, p.MaxVotes)
	if p.SeedMinStars != nil {
		base.SeedMinStars = *p.SeedMinStars
	}
	if p.SeedMaxStars != nil {
		base.SeedMaxStars = *p.SeedMaxStars
	}
	setInt(&base.ThresholdVotes, p.ThresholdVotes)
	return base
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func atLeast(v, lo int) int {
	if v < lo {
		return lo
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
