package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Platform is a supported social network.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
	PlatformReddit   Platform = "reddit"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformTwitter, PlatformLinkedIn, PlatformReddit}

// ParsePlatform maps user input to a Platform. Matching ignores case and
// surrounding whitespace; "x" is accepted for twitter.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "twitter", "x":
		return PlatformTwitter, nil
	case "linkedin":
		return PlatformLinkedIn, nil
	case "reddit":
		return PlatformReddit, nil
	}
	return "", &UnsupportedPlatformError{Platform: s}
}

// MaxChars is the hard character limit for a post, 0 meaning unbounded.
func (p Platform) MaxChars() int {
	switch p {
	case PlatformTwitter:
		return 280
	case PlatformLinkedIn:
		return 3000
	case PlatformReddit:
		return 40000
	}
	return 0
}

// Column is the record column holding this platform's posts.
func (p Platform) Column() string {
	switch p {
	case PlatformTwitter:
		return "twitter_post"
	case PlatformLinkedIn:
		return "linkedin_post"
	case PlatformReddit:
		return "reddit_post"
	}
	return ""
}

// Fit truncates text to the platform limit, cutting at the last word
// boundary that fits. Text already within the limit is returned trimmed.
func (p Platform) Fit(text string) string {
	text = strings.TrimSpace(text)
	limit := p.MaxChars()
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := runes[:limit]
	// prefer a whitespace boundary in the back half of the window
	for i := len(cut) - 1; i >= limit/2; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimRightFunc(string(cut[:i]), unicode.IsSpace)
		}
	}
	return string(cut)
}
