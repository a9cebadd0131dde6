package entity

import (
	"net/url"
	"time"
)

// ScraperState is the persisted control block of one source scraper
// instance. It is written only by its own instance, read back on every
// tick, and shape-validated before the instance acts on it: a corrupt
// blob must park the scraper far in the future instead of looping.
type ScraperState struct {
	SourceID            int64      `json:"sourceId"`
	URL                 string     `json:"url"`
	ScrapeFrequencyTier int        `json:"scrapeFrequencyTier"`
	LastChecked         *time.Time `json:"lastChecked"`
}

// Validate checks the state blob read from persistence. Tier coercion
// happens at write time, so a persisted tier outside the known range is
// corruption, not a normalization case.
func (s *ScraperState) Validate() error {
	if s == nil {
		return &ValidationError{Field: "state", Message: "state is nil"}
	}
	if s.SourceID <= 0 {
		return &ValidationError{Field: "sourceId", Message: "source id must be positive"}
	}

	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Message: "state url must be an absolute http(s) url"}
	}

	if _, coerced := NormalizeTier(s.ScrapeFrequencyTier); coerced {
		return &ValidationError{Field: "scrapeFrequencyTier", Message: "tier out of range"}
	}

	return nil
}

// Interval returns the tick interval implied by the persisted tier.
func (s *ScraperState) Interval() time.Duration {
	return TierInterval(s.ScrapeFrequencyTier)
}
