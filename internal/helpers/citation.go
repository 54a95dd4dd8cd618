package helpers

import (
	"net/url"
	"strings"
)

// Citation is one numbered source in a research brief.
type Citation struct {
	SourceID string
	Title    string
	URL      string
	Snippet  string
}

type citationConfig struct {
	maxSnippet int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxSnippetLength truncates snippets to n bytes (default 180).
func WithMaxSnippetLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n > 0 {
			cfg.maxSnippet = n
		}
	}
}

// FormatCitation renders one source line:
//
//	[id] Title: "Snippet" (domain) <URL>
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxSnippet: 180}
	for _, opt := range opts {
		opt(&cfg)
	}

	sourceID := strings.TrimSpace(c.SourceID)
	if sourceID == "" {
		sourceID = "source"
	}
	head := "[" + sourceID + "]"
	if title := strings.TrimSpace(c.Title); title != "" {
		head += " " + title
	}
	parts := []string{head}
	if snippet := formatSnippet(c.Snippet, cfg.maxSnippet); snippet != "" {
		parts[0] += ":"
		parts = append(parts, snippet)
	}
	if domain := extractDomain(c.URL); domain != "" {
		parts = append(parts, "("+domain+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	return strings.Join(parts, " ")
}

func formatSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	if limit > 0 && len(snippet) > limit {
		snippet = strings.ToValidUTF8(snippet[:limit], "") + "…"
	}
	return `"` + strings.Trim(snippet, `"`) + `"`
}

func extractDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return strings.TrimPrefix(host, "www.")
}
