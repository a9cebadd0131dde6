// Package postgres provides PostgreSQL implementations of repository interfaces.
package postgres

import (
	"fmt"
	"strings"
)

// valuesClause renders the VALUES part of a multi-row insert with numbered
// placeholders: valuesClause(2, 3) => "($1, $2, $3), ($4, $5, $6)".
// Shared by every batch insert so COUNT-of-columns drift stays in one place.
func valuesClause(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteString(")")
	}
	return b.String()
}

// placeholderList renders "$start, $start+1, ..." for n placeholders,
// used for IN (...) membership against an id batch.
func placeholderList(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
