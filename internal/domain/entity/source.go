package entity

import (
	"time"
)

// Scrape frequency tiers. The tier decides how often the per-source
// scraper ticks; anything outside the known range is coerced to
// TierStandard by NormalizeTier.
const (
	TierFrequent = 1 // hourly
	TierStandard = 2 // every 4 hours
	TierSlow     = 3 // every 6 hours
	TierDaily    = 4 // every 24 hours
)

// tierIntervals maps a frequency tier to its tick interval.
var tierIntervals = map[int]time.Duration{
	TierFrequent: time.Hour,
	TierStandard: 4 * time.Hour,
	TierSlow:     6 * time.Hour,
	TierDaily:    24 * time.Hour,
}

// NormalizeTier coerces t into the supported tier range. The second
// return value reports whether a coercion happened so the caller can log
// it; the entity layer itself stays silent.
func NormalizeTier(t int) (int, bool) {
	if _, ok := tierIntervals[t]; ok {
		return t, false
	}
	return TierStandard, true
}

// TierInterval returns the tick interval for tier t, coercing unknown
// tiers to the standard interval.
func TierInterval(t int) time.Duration {
	norm, _ := NormalizeTier(t)
	return tierIntervals[norm]
}

// Source represents a publisher feed registered for ingestion.
// LastChecked advances only after a fully successful tick. InitializedAt
// mirrors the do_initialized_at column: non-nil iff a scraper instance
// exists for this source.
type Source struct {
	ID                  int64
	Name                string
	URL                 string
	Category            string
	Paywall             bool
	ScrapeFrequencyTier int
	LastChecked         *time.Time
	InitializedAt       *time.Time
}

// Validate checks the fields an admin-supplied source must carry before a
// scraper instance may be created for it.
func (s *Source) Validate() error {
	if s.ID <= 0 {
		return &ValidationError{Field: "id", Message: "source id must be positive"}
	}
	if err := ValidateURL(s.URL); err != nil {
		return err
	}
	// Tier is normalized rather than rejected, matching scheduler behavior.
	return nil
}

// Interval returns how long this source waits between scheduled ticks.
func (s *Source) Interval() time.Duration {
	return TierInterval(s.ScrapeFrequencyTier)
}
