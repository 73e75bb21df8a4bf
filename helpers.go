package pubindex

import (
	"net/url"
	"path"
	"strings"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// EntryURL returns the public URL of an entry: its id without the file
// extension, below the blog. Suffixed ids keep their extension so they do
// not collide with the id they were minted next to.
func EntryURL(base, blog, id string) string {
	if ext := path.Ext(id); !strings.Contains(ext, "~") {
		id = strings.TrimSuffix(id, ext)
	}
	return BuildURL(base, blog, id)
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
