// Package scraper runs one polling state machine per registered source.
//
// Each instance owns a single goroutine that fires ticks on the source's
// frequency tier. A tick re-arms its own successor before doing any work,
// so a failing feed can never stall its schedule. Instances are addressed
// by a stable identity derived from the source URL, which makes repeated
// initialize calls for the same feed converge on one instance.
package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// idLen is the number of hex characters kept from the URL digest.
const idLen = 16

// ScraperID derives the stable instance identity for a source URL.
// The same URL always maps to the same id across restarts and hosts.
func ScraperID(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])[:idLen]
}
