package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/aeoengine/internal/helpers"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/models"
)

// DefaultStageTimeout bounds a stage when no timeout is configured.
const DefaultStageTimeout = 90 * time.Second

// StageOptions binds a persona to its collaborators.
type StageOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Grounding is consulted only for grounded personas.
	Grounding Searcher
	TopK      int
	// Tool is consulted only for tooled personas.
	Tool   WebResearcher
	Logger *slog.Logger
}

// Stage is a stateless generation unit. Run may be called concurrently.
type Stage struct {
	persona   Persona
	llm       LLMProvider
	opts      StageOptions
	logger    *slog.Logger
	grounding Searcher
	tool      WebResearcher
}

func NewStage(persona Persona, llm LLMProvider, opts StageOptions) *Stage {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStageTimeout
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	s := &Stage{
		persona: persona,
		llm:     llm,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "stage").With("stage", persona.Name),
	}
	if persona.Grounded {
		s.grounding = opts.Grounding
	}
	if persona.Tooled {
		s.tool = opts.Tool
	}
	return s
}

// Name is the persona name.
func (s *Stage) Name() string { return s.persona.Name }

// Run executes the stage once. There are no retries; any provider error,
// an empty answer or the stage deadline yields a *GenerationError.
func (s *Stage) Run(ctx context.Context, prompt string) (StageOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	input := s.augment(ctx, prompt)
	text, in, out, err := s.llm.GenerateWithTokens(ctx, Completion{
		Model:       s.opts.Model,
		System:      s.persona.Instructions,
		Prompt:      input,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return StageOutput{}, &GenerationError{Stage: s.persona.Name, Err: err}
	}
	text = helpers.UnwrapFence(text)
	if text == "" {
		return StageOutput{}, &GenerationError{Stage: s.persona.Name, Err: ErrEmptyOutput}
	}
	return StageOutput{Text: text, Usage: models.Usage{PromptTokens: in, CompletionTokens: out}}, nil
}

// augment appends knowledge snippets and web research to the prompt.
// Failures here degrade to an unaugmented prompt.
func (s *Stage) augment(ctx context.Context, prompt string) string {
	var b strings.Builder
	b.WriteString(prompt)
	if s.grounding != nil {
		snippets, err := s.grounding.Search(ctx, groundingQuery(prompt), s.opts.TopK)
		if err != nil {
			s.logger.Warn("knowledge search failed", "error", err)
		}
		if len(snippets) > 0 {
			b.WriteString("\n\n## Knowledge base\n")
			for _, sn := range snippets {
				b.WriteString("\n---\n")
				b.WriteString(strings.TrimSpace(sn))
				b.WriteString("\n")
			}
		}
	}
	if s.tool != nil {
		research, err := s.tool.Research(ctx, prompt)
		if err != nil {
			s.logger.Warn("web research failed", "error", err)
		}
		if strings.TrimSpace(research) != "" {
			b.WriteString("\n\n## Web research\n\n")
			b.WriteString(strings.TrimSpace(research))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// maxGroundingRunes bounds the knowledge query derived from a stage prompt.
const maxGroundingRunes = 1000

// groundingQuery keeps the leading lines of prompt, which carry the topic
// and the start of any prior output, up to maxGroundingRunes.
func groundingQuery(prompt string) string {
	var b strings.Builder
	n := 0
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)
		if n+len(r) > maxGroundingRunes {
			r = r[:maxGroundingRunes-n]
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(r))
		n += len(r)
		if n >= maxGroundingRunes {
			break
		}
	}
	return b.String()
}

var listMarker = regexp.MustCompile(`^(?:[#>*-]+\s*|\d+[.)]\s+)+`)

// DistillTopic reduces a topic-distiller answer to a single clean line.
func DistillTopic(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, "\"'`*_ ")
		if strings.HasPrefix(strings.ToLower(line), "topic:") {
			line = strings.TrimSpace(line[len("topic:"):])
			line = strings.Trim(line, "\"'`*_ ")
		}
		if line != "" {
			return line
		}
	}
	return ""
}
