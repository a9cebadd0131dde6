// Package text holds the string helpers shared across the ingestion
// pipeline: whitespace and tracking-parameter cleanup for feed items,
// normalization for extracted article bodies, and rune counting for
// model input budgets.
package text

import "unicode/utf8"

// CountRunes returns the number of Unicode code points in s.
//
// Model input budgets and the truncation logs are expressed in
// characters, not bytes, so that a Japanese article and an English one
// of the same length consume the same budget. len(s) would charge the
// Japanese one three times over.
//
// Counting is allocation free; no intermediate []rune is built.
func CountRunes(s string) int {
	return utf8.RuneCountInString(s)
}
