package models

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{"Twitter": PlatformTwitter, " x ": PlatformTwitter, "LINKEDIN": PlatformLinkedIn, "reddit": PlatformReddit} {
		got, err := ParsePlatform(in)
		if err != nil || got != want {
			t.Fatalf("ParsePlatform(%q) = %q, %v", in, got, err)
		}
	}
	_, err := ParsePlatform("mastodon")
	var upe *UnsupportedPlatformError
	if !errors.As(err, &upe) || upe.Platform != "mastodon" {
		t.Fatalf("expected UnsupportedPlatformError, got %v", err)
	}
}

func TestPlatformFit(t *testing.T) {
	long := strings.Repeat("grounded content engine ", 40)
	got := PlatformTwitter.Fit(long)
	if n := utf8.RuneCountInString(got); n > 280 {
		t.Fatalf("fit produced %d runes", n)
	}
	if strings.HasSuffix(got, " ") || !strings.HasPrefix(long, got) {
		t.Fatalf("unexpected cut %q", got)
	}
	short := "short post #aeo"
	if PlatformTwitter.Fit(short) != short {
		t.Fatalf("short text changed")
	}
	unbroken := strings.Repeat("é", 400)
	if n := utf8.RuneCountInString(PlatformTwitter.Fit(unbroken)); n != 280 {
		t.Fatalf("hard cut gave %d runes", n)
	}
}
