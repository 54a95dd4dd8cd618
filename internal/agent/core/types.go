package core

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/aeoengine/models"
)

// LLMProvider is the completion and embedding backend used by stages and
// the knowledge index.
type LLMProvider interface {
	// GenerateWithTokens generates text and returns prompt and completion token usage
	GenerateWithTokens(ctx context.Context, req Completion) (string, int64, int64, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Completion is a single chat completion request.
type Completion struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Searcher returns knowledge snippets most similar to query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// WebResearcher gathers web context for a query as plain text.
type WebResearcher interface {
	Research(ctx context.Context, query string) (string, error)
}

// Persona is the fixed identity of a stage.
type Persona struct {
	Name         string
	Instructions string
	// Grounded stages receive knowledge snippets for their prompt.
	Grounded bool
	// Tooled stages receive web research for their prompt.
	Tooled bool
}

// StageOutput is what one stage invocation produced.
type StageOutput struct {
	Text  string
	Usage models.Usage
}

// StageTrace records one executed stage of a run.
type StageTrace struct {
	Stage    string        `json:"stage"`
	Usage    models.Usage  `json:"usage"`
	Duration time.Duration `json:"duration"`
	Chars    int           `json:"chars"`
}

// BlogRequest asks for a blog. Brief is used only when Topic is empty.
type BlogRequest struct {
	Topic string
	Brief string
}

// SocialRequest asks for a single social post.
type SocialRequest struct {
	Topic    string
	Platform models.Platform
}

// Result is the outcome of a flow run.
type Result struct {
	RunID string
	// Topic is the supplied topic or, for brief-driven runs, the resolved one.
	Topic string
	// TopicFromBrief is true when Topic was distilled from a brief.
	TopicFromBrief bool
	Text           string
	Usage          models.Usage
	Stages         []StageTrace
}
