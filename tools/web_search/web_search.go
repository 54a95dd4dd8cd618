package web_search

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/aeoengine/tools/web_search/brave"
	"github.com/mohammad-safakhou/aeoengine/tools/web_search/models"
	"github.com/mohammad-safakhou/aeoengine/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

// Error is a web search configuration error.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "web search: " + e.Msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
