package index

import (
	"strings"
	"unicode"
)

// NormalizeTag lower-cases a tag, trims it and collapses inner whitespace.
func NormalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), " ")
}

// Slugify converts a tag or title to a URL-safe slug. Letters and digits of
// any script are kept; everything else becomes a single dash.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// normalizeTags maps each distinct normalized tag to the first label that
// produced it. Empty tags are dropped.
func normalizeTags(tags []string) (map[string]string, []string) {
	labels := make(map[string]string, len(tags))
	var order []string
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, ok := labels[n]; ok {
			continue
		}
		labels[n] = strings.Join(strings.Fields(t), " ")
		order = append(order, n)
	}
	return labels, order
}
