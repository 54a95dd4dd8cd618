package models

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// Extract runs readability over raw HTML and fills a Result. Text is capped
// at maxChars bytes.
func Extract(pageURL, html string, maxChars int) (Result, error) {
	sum := sha1.Sum([]byte(html))
	res := Result{URL: pageURL, HTMLHash: hex.EncodeToString(sum[:]), Status: 200}

	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return res, err
	}
	text := strings.TrimSpace(article.TextContent)
	if maxChars > 0 && len(text) > maxChars {
		text = strings.ToValidUTF8(text[:maxChars], "")
	}
	res.Title = strings.TrimSpace(article.Title)
	res.Byline = strings.TrimSpace(article.Byline)
	res.SiteName = strings.TrimSpace(article.SiteName)
	res.Text = text
	return res, nil
}
