package build

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eringen/pubindex/entry"
)

var reHeaderLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _-]*):\s*(.*)$`)

// parseHeader splits leading "Key: value" lines off content. The header
// ends at the first blank line, which is consumed, or at the first line
// that is not a header line. A header may also be fenced by "---" lines.
// Keys are lower-cased.
func parseHeader(content string) (entry.Metadata, string) {
	meta := entry.Metadata{}
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	fenced := len(lines) > 0 && strings.TrimSpace(lines[0]) == "---"
	i := 0
	if fenced {
		i = 1
	}
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if fenced && line == "---" {
			i++
			break
		}
		if line == "" {
			if fenced {
				continue
			}
			i++
			break
		}
		m := reHeaderLine.FindStringSubmatch(line)
		if m == nil {
			if fenced {
				// not a header after all
				return entry.Metadata{}, content
			}
			break
		}
		meta[strings.ToLower(strings.TrimSpace(m[1]))] = entry.String(strings.TrimSpace(m[2]))
	}
	if len(meta) == 0 && !fenced {
		return meta, content
	}
	return meta, strings.Join(lines[i:], "\n")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDate reads a publication date as unix milliseconds. Bare numbers are
// taken as milliseconds already.
func parseDate(s string, loc *time.Location) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized date %q", s)
}
