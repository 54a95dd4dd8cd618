package helpers

import (
	"strings"
	"testing"
)

func TestFormatCitation(t *testing.T) {
	got := FormatCitation(Citation{
		SourceID: "1",
		Title:    "Answer engines explained",
		URL:      "https://www.example.com:443/aeo?x=1",
		Snippet:  "  Answer   engines summarise\n the web. ",
	})
	want := `[1] Answer engines explained: "Answer engines summarise the web." (example.com) <https://www.example.com:443/aeo?x=1>`
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestFormatCitationMinimal(t *testing.T) {
	if got := FormatCitation(Citation{}); got != "[source]" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCitation(Citation{SourceID: "2", Title: "T"}); got != "[2] T" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatCitationTruncatesSnippet(t *testing.T) {
	got := FormatCitation(Citation{SourceID: "3", Snippet: strings.Repeat("a", 50)}, WithMaxSnippetLength(10))
	if want := `[3]: "aaaaaaaaaa…"`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
