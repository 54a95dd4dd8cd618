// Package research combines web search and page extraction into a plain-text
// research brief for the research stage.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/aeoengine/config"
	"github.com/mohammad-safakhou/aeoengine/internal/helpers"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch"
	fetchmodels "github.com/mohammad-safakhou/aeoengine/tools/web_fetch/models"
	"github.com/mohammad-safakhou/aeoengine/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/aeoengine/tools/web_search/models"
)

const (
	maxQueryRunes = 256
	maxPageChars  = 3000
)

// Web searches and reads the top pages.
type Web struct {
	Searcher   web_search.WebSearcher
	Fetcher    web_fetch.WebFetcher // optional
	MaxResults int
	FetchPages int
	Policy     config.SourcePolicyConfig
	Logger     *slog.Logger
}

func New(searcher web_search.WebSearcher, fetcher web_fetch.WebFetcher, maxResults, fetchPages int, policy config.SourcePolicyConfig, logger *slog.Logger) *Web {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Web{
		Searcher:   searcher,
		Fetcher:    fetcher,
		MaxResults: maxResults,
		FetchPages: fetchPages,
		Policy:     policy.Normalize(),
		Logger:     logging.NewComponentLogger(logger, "research"),
	}
}

// Research returns a markdown brief of search hits and page extracts.
func (w *Web) Research(ctx context.Context, prompt string) (string, error) {
	query := SearchQuery(prompt)
	if query == "" {
		return "", nil
	}
	hits, err := w.Searcher.Discover(ctx, query, w.MaxResults)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	hits = w.permitted(hits)
	if len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("### Sources\n")
	for i, h := range hits {
		b.WriteString(helpers.FormatCitation(helpers.Citation{
			SourceID: strconv.Itoa(i + 1),
			Title:    h.Title,
			URL:      h.URL,
			Snippet:  h.Snippet,
		}))
		b.WriteByte('\n')
	}

	pages := w.fetch(ctx, hits)
	if len(pages) > 0 {
		b.WriteString("\n### Page extracts\n")
		for _, p := range pages {
			title := p.Title
			if title == "" {
				title = p.URL
			}
			fmt.Fprintf(&b, "\n#### %s\nSource: %s\n\n%s\n", title, p.URL, p.Text)
		}
	}
	return b.String(), nil
}

// fetch reads the top FetchPages fetchable hits concurrently, keeping search order.
func (w *Web) fetch(ctx context.Context, hits []searchmodels.Result) []fetchmodels.Result {
	if w.Fetcher == nil || w.FetchPages <= 0 {
		return nil
	}
	var urls []string
	for _, h := range hits {
		if len(urls) == w.FetchPages {
			break
		}
		if w.Policy.Fetchable(h.URL) {
			urls = append(urls, h.URL)
		}
	}
	results := make([]fetchmodels.Result, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			res, err := w.Fetcher.Exec(ctx, url)
			if err != nil {
				w.Logger.Debug("page fetch failed", "url", url, "error", err)
				return
			}
			res.Text = strings.TrimSpace(res.Text)
			if len(res.Text) > maxPageChars {
				res.Text = strings.ToValidUTF8(res.Text[:maxPageChars], "")
			}
			results[i] = res
		}(i, u)
	}
	wg.Wait()

	out := results[:0]
	for _, r := range results {
		if r.Text != "" {
			out = append(out, r)
		}
	}
	return out
}

// permitted drops hits whose host the source policy rejects.
func (w *Web) permitted(hits []searchmodels.Result) []searchmodels.Result {
	out := hits[:0]
	for _, h := range hits {
		if w.Policy.Permits(h.URL) {
			out = append(out, h)
			continue
		}
		w.Logger.Debug("search hit rejected by source policy", "url", h.URL)
	}
	return out
}

// SearchQuery reduces a stage prompt to a search query: the first non-empty
// line, without the instruction prefix, capped in length.
func SearchQuery(prompt string) string {
	line := ""
	for _, l := range strings.Split(prompt, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if i := strings.LastIndex(strings.ToLower(line), "about: "); i >= 0 {
		line = strings.TrimSpace(line[i+len("about: "):])
	}
	line = strings.Trim(line, "\"'")
	if r := []rune(line); len(r) > maxQueryRunes {
		line = string(r[:maxQueryRunes])
	}
	return line
}
