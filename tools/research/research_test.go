package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/aeoengine/config"
	fetchmodels "github.com/mohammad-safakhou/aeoengine/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/aeoengine/tools/web_search/models"
)

type fakeSearch struct {
	query string
	hits  []searchmodels.Result
	err   error
}

func (f *fakeSearch) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	f.query = q
	return f.hits, f.err
}

type fakeFetch map[string]string

func (f fakeFetch) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	text, ok := f[url]
	if !ok {
		return fetchmodels.Result{}, errors.New("timeout")
	}
	return fetchmodels.Result{URL: url, Title: "Page " + url, Text: text}, nil
}

func TestResearchFormatsHitsAndPages(t *testing.T) {
	search := &fakeSearch{hits: []searchmodels.Result{
		{Title: "One", URL: "https://one.example/a", Snippet: "first snippet"},
		{Title: "Two", URL: "https://two.example/b"},
		{Title: "Three", URL: "https://three.example/c"},
	}}
	w := New(search, fakeFetch{"https://one.example/a": "page one body", "https://three.example/c": "never fetched"}, 3, 2, config.SourcePolicyConfig{}, nil)

	out, err := w.Research(context.Background(), "Research key facts, statistics, and user questions about: zero-click search\nextra")
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if search.query != "zero-click search" {
		t.Fatalf("query = %q", search.query)
	}
	for _, want := range []string{`[1] One: "first snippet" (one.example) <https://one.example/a>`, "[3] Three (three.example) <https://three.example/c>", "### Page extracts", "page one body"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "never fetched") {
		t.Fatalf("fetched beyond FetchPages")
	}
}

func TestResearchAppliesSourcePolicy(t *testing.T) {
	search := &fakeSearch{hits: []searchmodels.Result{
		{Title: "Spam", URL: "https://www.spam.example/x"},
		{Title: "Paper", URL: "https://news.paywalled.example/story", Snippet: "lede"},
		{Title: "Open", URL: "https://open.example/post"},
	}}
	fetch := fakeFetch{
		"https://news.paywalled.example/story": "locked body",
		"https://open.example/post":            "open body",
	}
	policy := config.SourcePolicyConfig{
		Disallow: []string{"spam.example"},
		Paywall:  []string{"paywalled.example"},
	}
	w := New(search, fetch, 3, 1, policy, nil)

	out, err := w.Research(context.Background(), "zero-click search")
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if strings.Contains(out, "Spam") {
		t.Fatalf("disallowed host cited:\n%s", out)
	}
	for _, want := range []string{`[1] Paper: "lede"`, "[2] Open", "open body"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "locked body") {
		t.Fatalf("paywalled page fetched")
	}
}

func TestResearchSearchError(t *testing.T) {
	w := New(&fakeSearch{err: errors.New("quota")}, nil, 0, 0, config.SourcePolicyConfig{}, nil)
	if _, err := w.Research(context.Background(), "about: x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchQuery(t *testing.T) {
	if got := SearchQuery("\n  \"plain topic\"  "); got != "plain topic" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", 400)
	if got := SearchQuery(long); len(got) != maxQueryRunes {
		t.Fatalf("query not capped: %d", len(got))
	}
}
