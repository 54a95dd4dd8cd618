package web_fetch

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch/http"
	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
	userAgent       = "aeoengine-research/1.0"
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

// Error is a fetcher configuration error.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "web fetch: " + e.Msg }

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case HTTPFetcherType, "":
		return http.Fetch{Client: &nethttp.Client{Timeout: timeout}, MaxChars: maxChars, UserAgent: userAgent}, nil
	case ChromedpFetcherType:
		return chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: userAgent}, nil
	default:
		return nil, &Error{"unsupported fetcher type"}
	}
}
