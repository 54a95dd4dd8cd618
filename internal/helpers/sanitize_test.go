package helpers

import "testing"

func TestPlainTextRemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	if got, want := PlainText(input), "Hello world"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPlainTextKeepsEntities(t *testing.T) {
	input := `Tips & tricks for "answer engines" #AEO`
	if got := PlainText(input); got != input {
		t.Fatalf("expected %q, got %q", input, got)
	}
	if got := PlainText("   "); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"brand guide.pdf":        "brand_guide.pdf",
		"../../etc/passwd":       "passwd",
		`..\..\windows\win.ini`:  "win.ini",
		".hidden.md":             "hidden.md",
		"résumé.txt":             "rsum.txt",
		"..":                     "",
		"":                       "",
		"notes<script>.markdown": "notesscript.markdown",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
