package build

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

var (
	reBold           = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore = regexp.MustCompile(`__(.+?)__`)
	reItalic         = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnder    = regexp.MustCompile(`_([^_]+)_`)
	reCode           = regexp.MustCompile("`([^`]+)`")
	reLink           = regexp.MustCompile(`\[(.*?)\]\((.*?)\)(\^)?`)
	reOrdered        = regexp.MustCompile(`^(\d+)\.\s`)
	reHeading        = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	// ![alt](src) with an optional {style} or {style|width|height} suffix
	reImage = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)(?:\{([^|}]*?)(?:\|(\d+)\|(\d+))?\})?`)
)

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(md string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		RenderMarkdown(&buf, md)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// renderHTML renders md through the templ component.
func renderHTML(ctx context.Context, md string) (string, error) {
	var sb strings.Builder
	if err := Markdown(md).Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type block int

const (
	blockNone block = iota
	blockPara
	blockList
	blockOrdered
	blockQuote
	blockTable
)

var closers = map[block]string{
	blockPara:    "</p>",
	blockList:    "</ul>",
	blockOrdered: "</ol>",
	blockQuote:   "</blockquote>",
}

type renderer struct {
	buf       *bytes.Buffer
	open      block
	images    int
	tableBody bool
}

// enter opens b unless it is already the open block and reports whether it
// was newly opened.
func (r *renderer) enter(b block, tag string) bool {
	if r.open == b {
		return false
	}
	r.close()
	r.buf.WriteString(tag)
	r.open = b
	return true
}

func (r *renderer) close() {
	switch r.open {
	case blockNone:
		return
	case blockTable:
		if r.tableBody {
			r.buf.WriteString("</tbody>")
		}
		r.buf.WriteString("</table>")
		r.tableBody = false
	default:
		r.buf.WriteString(closers[r.open])
	}
	r.open = blockNone
}

func (r *renderer) inline(s string) string {
	return FormatInline(strings.TrimSpace(s), &r.images)
}

func (r *renderer) cells(tag, line string) {
	r.buf.WriteString("<tr>")
	for _, cell := range tableCells(line) {
		r.buf.WriteString("<" + tag + ">" + r.inline(cell) + "</" + tag + ">")
	}
	r.buf.WriteString("</tr>")
}

func (r *renderer) row(line string) {
	if r.enter(blockTable, "<table><thead>") {
		r.cells("th", line)
		r.buf.WriteString("</thead>")
		return
	}
	if !r.tableBody {
		r.buf.WriteString("<tbody>")
		r.tableBody = true
	}
	if !tableSeparator(line) {
		r.cells("td", line)
	}
}

func (r *renderer) fence(lang string, body []string) {
	r.close()
	if lang == "" {
		r.buf.WriteString(`<pre class="code-block"><code>`)
	} else {
		lang = html.EscapeString(lang)
		r.buf.WriteString(`<div class="code-block-wrapper"><span class="code-lang code-lang-` + lang + `">` + lang + `</span>`)
		r.buf.WriteString(`<pre class="code-block"><code class="language-` + lang + `">`)
	}
	for _, l := range body {
		r.buf.WriteString(html.EscapeString(l))
		r.buf.WriteByte('\n')
	}
	r.buf.WriteString("</code></pre>")
	if lang != "" {
		r.buf.WriteString("</div>")
	}
}

// RenderMarkdown writes the HTML representation of md to buf.
func RenderMarkdown(buf *bytes.Buffer, md string) {
	r := &renderer{buf: buf}
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r ")

		if lang, ok := strings.CutPrefix(line, "```"); ok {
			var body []string
			for i++; i < len(lines) && !strings.HasPrefix(lines[i], "```"); i++ {
				body = append(body, strings.TrimRight(lines[i], "\r"))
			}
			r.fence(strings.TrimSpace(lang), body)
			continue
		}

		if strings.TrimSpace(line) == "" {
			r.close()
			continue
		}

		switch {
		case strings.HasPrefix(line, "---"):
			r.close()
			buf.WriteString("<hr/>")
		case reHeading.MatchString(line):
			r.close()
			m := reHeading.FindStringSubmatch(line)
			level := strconv.Itoa(len(m[1]))
			buf.WriteString("<h" + level + ">" + r.inline(m[2]) + "</h" + level + ">")
		case strings.HasPrefix(line, "|"):
			r.row(line)
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			r.enter(blockList, "<ul>")
			buf.WriteString("<li>" + r.inline(line[2:]) + "</li>")
		case reOrdered.MatchString(line):
			r.enter(blockOrdered, "<ol>")
			buf.WriteString("<li>" + r.inline(reOrdered.ReplaceAllString(line, "")) + "</li>")
		case strings.HasPrefix(line, "> "):
			if !r.enter(blockQuote, "<blockquote>") {
				buf.WriteByte(' ')
			}
			buf.WriteString(r.inline(line[2:]))
		default:
			if !r.enter(blockPara, "<p>") {
				buf.WriteByte('\n')
			}
			buf.WriteString(r.inline(line))
		}
	}
	r.close()
}

func tableCells(line string) []string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func tableSeparator(line string) bool {
	for _, cell := range tableCells(line) {
		if strings.Trim(cell, "-:") != "" {
			return false
		}
	}
	return true
}

// outsideTags applies fn only to the text between HTML tags, so inline
// formatting never reaches attribute values such as hrefs.
func outsideTags(s string, fn func(string) string) string {
	var sb strings.Builder
	for s != "" {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			sb.WriteString(fn(s))
			break
		}
		sb.WriteString(fn(s[:lt]))
		gt := strings.IndexByte(s[lt:], '>')
		if gt < 0 {
			sb.WriteString(s[lt:])
			break
		}
		sb.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return sb.String()
}

func imageTag(m []string, count *int) string {
	src := SafeURL(m[2])
	if src == "" {
		return m[1]
	}
	width, height := "1024", "768"
	if m[4] != "" && m[5] != "" {
		width, height = m[4], m[5]
	}
	*count++
	load := `loading="lazy"`
	if *count == 1 {
		load = `fetchpriority="high"`
	}
	tag := `<img ` + load + ` width="` + width + `" height="` + height + `" alt="` + m[1] + `" src="` + src + `"`
	if m[3] != "" {
		tag += ` style="` + m[3] + `"`
	}
	return tag + ` decoding="async"/>`
}

// FormatInline escapes s and applies images, links, code spans, bold and
// italics. count tracks images across a document; the first one is fetched
// with high priority.
func FormatInline(s string, count *int) string {
	out := html.EscapeString(s)
	out = reImage.ReplaceAllStringFunc(out, func(m string) string {
		return imageTag(reImage.FindStringSubmatch(m), count)
	})
	out = reLink.ReplaceAllStringFunc(out, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		attrs := `class="underline decoration-2 underline-offset-4"`
		if match[3] == "^" {
			attrs += ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `" ` + attrs + `>` + match[1] + `</a>`
	})

	// code spans are parked behind placeholders so emphasis skips them
	var spans []string
	out = reCode.ReplaceAllStringFunc(out, func(m string) string {
		spans = append(spans, "<code>"+reCode.FindStringSubmatch(m)[1]+"</code>")
		return "\x00" + strconv.Itoa(len(spans)-1) + "\x00"
	})
	out = outsideTags(out, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		return reItalicUnder.ReplaceAllString(seg, "<em>$1</em>")
	})
	for i, span := range spans {
		out = strings.Replace(out, "\x00"+strconv.Itoa(i)+"\x00", span, 1)
	}
	return out
}

// SafeURL returns raw escaped for an HTML attribute, or "" when it is not a
// relative, fragment, http(s), mailto or tel URL.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	u, err := url.Parse(val)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	}
	return ""
}
