package tools

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/unishare/unishare-sw/internal/cache"
)

// MaxPreview bounds how much of a body is rendered.
const MaxPreview = 64 * 1024

// Lookup finds key in the named generation without creating it.
func Lookup(storage cache.Storage, generation, rawURL string) (cache.Key, *cache.Response, error) {
	key, err := cache.NewKey(http.MethodGet, rawURL)
	if err != nil {
		return cache.Key{}, nil, err
	}
	ok, err := storage.Has(generation)
	if err != nil {
		return key, nil, err
	}
	if !ok {
		return key, nil, fmt.Errorf("no cache generation %q", generation)
	}
	c, err := storage.Open(generation)
	if err != nil {
		return key, nil, err
	}
	resp, err := c.Match(key)
	return key, resp, err
}

// FormatGenerations lists store names, marking the current one.
func FormatGenerations(names []string, current string) string {
	if len(names) == 0 {
		return "No cache generations."
	}
	var sb strings.Builder
	for i, name := range names {
		sb.WriteString("- ")
		sb.WriteString(name)
		if name == current {
			sb.WriteString(" (current)")
		}
		if i < len(names)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatEntryLine is the one-line summary used in listings.
func FormatEntryLine(key cache.Key, resp *cache.Response) string {
	line := fmt.Sprintf("%s  %d %s  %d bytes", key, resp.Status, resp.Type, len(resp.Body))
	if isHTML(resp) {
		if title := Title(resp.Body); title != "" {
			line += "  " + title
		}
	}
	return line
}

// FormatEntry renders a cached response with its metadata. HTML bodies are
// converted to Markdown.
func FormatEntry(key cache.Key, resp *cache.Response) string {
	var sb strings.Builder
	if isHTML(resp) {
		if title := Title(resp.Body); title != "" {
			sb.WriteString("# ")
			sb.WriteString(title)
			sb.WriteString("\n\n")
		}
	}
	fmt.Fprintf(&sb, "Key: %s\nStatus: %d %s\nType: %s\n", key, resp.Status, resp.StatusText, resp.Type)
	if !resp.StoredAt.IsZero() {
		fmt.Fprintf(&sb, "Stored: %s\n", resp.StoredAt.Format("2006-01-02 15:04:05Z07:00"))
	}
	names := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&sb, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(renderBody(resp))
	return sb.String()
}

func isHTML(resp *cache.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

func isText(resp *cache.Response) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") || strings.Contains(ct, "javascript")
}

// Title returns the trimmed document title of an HTML body.
func Title(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("head > title").First().Text())
}

func renderBody(resp *cache.Response) string {
	body := resp.Body
	trimmed := false
	if len(body) > MaxPreview {
		body = body[:MaxPreview]
		trimmed = true
	}
	var out string
	switch {
	case isHTML(resp):
		out = htmlToMarkdown(body)
	case isText(resp):
		out = string(body)
	default:
		return fmt.Sprintf("[%d bytes of %s]", len(resp.Body), resp.Header.Get("Content-Type"))
	}
	if trimmed {
		out += "\n... [body trimmed]"
	}
	return out
}

func htmlToMarkdown(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	// Remove non-visible elements
	doc.Find("script, style, noscript, iframe, object, embed, svg, canvas, template").Remove()
	html, err := doc.Html()
	if err != nil {
		return string(body)
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	return strings.TrimSpace(md)
}
