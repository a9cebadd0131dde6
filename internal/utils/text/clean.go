package text

import (
	"net/url"
	"regexp"
	"strings"
)

// trackingParams are query keys removed outright by CleanURL. Keys with a
// "utm_" prefix are removed as well.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

// CleanString normalizes whitespace in feed-supplied text. Runs of Unicode
// whitespace (spaces, tabs, newlines, non-breaking spaces) collapse to a
// single space and leading/trailing whitespace is removed.
//
// The function is idempotent: CleanString(CleanString(s)) == CleanString(s).
func CleanString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanURL canonicalizes an article link by stripping tracking query
// parameters: any key starting with "utm_" (case-insensitive) plus fbclid
// and gclid. The rest of the URL is left untouched when no parameter is
// removed, so the function is idempotent. Unparseable input is returned
// trimmed but otherwise unchanged; validation is the caller's concern.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	changed := false
	for key := range q {
		lower := strings.ToLower(key)
		_, exact := trackingParams[lower]
		if exact || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// NormalizeArticleText cleans an extracted article body. Within each line,
// runs of spaces and tabs collapse to one space and the line is trimmed.
// At most two consecutive blank lines survive, and the result carries no
// leading or trailing whitespace.
func NormalizeArticleText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" {
			blanks++
			if blanks > 2 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
