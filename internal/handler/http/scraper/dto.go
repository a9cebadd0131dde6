package scraper

// initializeRequest mirrors the payload the source admin tool sends when a
// feed is registered or its cadence changes.
type initializeRequest struct {
	ID              int64  `json:"id"`
	URL             string `json:"url"`
	ScrapeFrequency int    `json:"scrape_frequency"`
}
