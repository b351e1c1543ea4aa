// Package urltrack canonicalizes page URLs and filters already-scraped pages
// out of freshly discovered URL lists, so interrupted ingest runs resume
// where they stopped.
package urltrack

import (
	"context"
	"net/url"
	"strings"
)

// trackingParams are query keys that vary per click without changing the
// page, so they are dropped before comparison.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"source": true,
}

func isTrackingParam(key string) bool {
	return trackingParams[key] || strings.HasPrefix(key, "utm_")
}

// Normalize reduces a URL to its canonical comparison form: scheme and a
// leading www. are stripped, the host is lowercased, tracking query
// parameters are removed, survivors are sorted, and the trailing slash and
// fragment are dropped. "https://www.Example.com/shows/?utm_source=x" and
// "example.com/shows" normalize identically.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed := raw
	if !strings.Contains(parsed, "://") {
		parsed = "https://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(u.EscapedPath(), "/")

	query := u.Query()
	for key := range query {
		if isTrackingParam(key) {
			delete(query, key)
		}
	}

	out := host + path
	if encoded := query.Encode(); encoded != "" {
		out += "?" + encoded
	}
	return out
}

// Page pairs a discovered URL with its normalized comparison form.
type Page struct {
	Original   string
	Normalized string
}

// History is the slice of the datastore the tracker consults for past runs.
type History interface {
	ScrapedURLSet(ctx context.Context, source string) (map[string]bool, error)
}

// Tracker decides which discovered URLs still need scraping.
type Tracker struct {
	history History
}

func NewTracker(history History) *Tracker {
	return &Tracker{history: history}
}

// FilterNew returns the URLs under source that have not been scraped yet, in
// discovery order. Duplicates within the list collapse to their first
// occurrence by normalized form. With force set, history is ignored and every
// distinct URL is returned, for deliberate re-scrapes.
func (t *Tracker) FilterNew(ctx context.Context, source string, urls []string, force bool) ([]Page, error) {
	seen := make(map[string]bool)
	if !force {
		scraped, err := t.history.ScrapedURLSet(ctx, source)
		if err != nil {
			return nil, err
		}
		for u := range scraped {
			seen[u] = true
		}
	}

	var out []Page
	for _, raw := range urls {
		normalized := Normalize(raw)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, Page{Original: raw, Normalized: normalized})
	}
	return out, nil
}
