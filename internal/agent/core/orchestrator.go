package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/aeoengine/config"
	"github.com/mohammad-safakhou/aeoengine/internal/agent/telemetry"
	"github.com/mohammad-safakhou/aeoengine/internal/helpers"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/models"
)

var orchestratorTracer trace.Tracer = otel.Tracer("aeoengine/internal/agent/orchestrator")

// Runner is anything that executes one generation step.
type Runner interface {
	Name() string
	Run(ctx context.Context, prompt string) (StageOutput, error)
}

// Orchestrator sequences stages for the blog and social flows. It holds no
// per-run state and performs no persistence.
type Orchestrator struct {
	logger    *slog.Logger
	telemetry *telemetry.Telemetry

	topic    Runner
	research Runner
	plan     Runner
	draft    Runner
	optimize Runner
	finalize Runner
	socialQA Runner
	social   map[models.Platform]Runner
}

// Dependencies are the collaborators shared by all stages.
type Dependencies struct {
	LLM       LLMProvider
	Knowledge Searcher
	Web       WebResearcher
	Telemetry *telemetry.Telemetry
	Logger    *slog.Logger
}

// NewOrchestrator builds every stage from configuration.
func NewOrchestrator(cfg *config.Config, deps Dependencies) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	build := func(p Persona) Runner {
		return NewStage(p, deps.LLM, StageOptions{
			Model:       cfg.LLM.ModelFor(p.Name),
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.Agents.StageTimeout,
			Grounding:   deps.Knowledge,
			TopK:        cfg.Agents.GroundingTopK,
			Tool:        deps.Web,
			Logger:      deps.Logger,
		})
	}
	social := make(map[models.Platform]Runner, len(models.Platforms))
	for _, p := range models.Platforms {
		persona, err := SocialWriter(p)
		if err != nil {
			return nil, err
		}
		social[p] = build(persona)
	}
	return &Orchestrator{
		logger:    logging.NewComponentLogger(deps.Logger, "orchestrator"),
		telemetry: deps.Telemetry,
		topic:     build(TopicDistiller),
		research:  build(Researcher),
		plan:      build(Planner),
		draft:     build(Writer),
		optimize:  build(Optimizer),
		finalize:  build(Finalizer),
		socialQA:  build(SocialQA),
		social:    social,
	}, nil
}

// run is the per-invocation accumulator.
type run struct {
	id     string
	flow   string
	start  time.Time
	usage  models.Usage
	stages []StageTrace
}

func (o *Orchestrator) step(ctx context.Context, r *run, stage Runner, prompt string) (string, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.stage",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("stage.name", stage.Name()),
		))
	defer span.End()

	started := time.Now()
	out, err := stage.Run(ctx, prompt)
	elapsed := time.Since(started)
	o.telemetry.RecordStageEvent(telemetry.StageEvent{Stage: stage.Name(), Usage: out.Usage, Duration: elapsed, Success: err == nil})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	r.usage = r.usage.Add(out.Usage)
	r.stages = append(r.stages, StageTrace{Stage: stage.Name(), Usage: out.Usage, Duration: elapsed, Chars: len(out.Text)})
	span.SetAttributes(
		attribute.Int64("tokens.prompt", out.Usage.PromptTokens),
		attribute.Int64("tokens.completion", out.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "completed")
	return out.Text, nil
}

// ResolveTopic distills a brief into a topic line.
func (o *Orchestrator) ResolveTopic(ctx context.Context, brief string) (string, models.Usage, error) {
	r := &run{id: uuid.NewString(), flow: "topic", start: time.Now()}
	topic, err := o.resolveTopic(ctx, r, brief)
	return topic, r.usage, err
}

func (o *Orchestrator) resolveTopic(ctx context.Context, r *run, brief string) (string, error) {
	raw, err := o.step(ctx, r, o.topic, brief)
	if err != nil {
		return "", err
	}
	topic := DistillTopic(raw)
	if topic == "" {
		return "", &GenerationError{Stage: o.topic.Name(), Err: ErrEmptyOutput}
	}
	return topic, nil
}

// RunBlog executes [topic resolution] -> research -> plan -> draft ->
// optimize -> finalize.
func (o *Orchestrator) RunBlog(ctx context.Context, req BlogRequest) (Result, error) {
	topic := strings.TrimSpace(req.Topic)
	brief := strings.TrimSpace(req.Brief)
	if topic == "" && brief == "" {
		return Result{}, &models.ValidationError{Field: "topic", Msg: "topic or prompt is required"}
	}

	r := &run{id: uuid.NewString(), flow: "blog", start: time.Now()}
	ctx, span := orchestratorTracer.Start(ctx, "agent.run_blog",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.Bool("topic.from_brief", topic == ""),
		))
	defer span.End()

	res, err := o.blog(ctx, r, topic, brief)
	res.Usage, res.Stages = r.usage, r.stages
	o.finish(span, r, res.Topic, err)
	return res, err
}

func (o *Orchestrator) blog(ctx context.Context, r *run, topic, brief string) (Result, error) {
	res := Result{RunID: r.id, Topic: topic}
	if topic == "" {
		resolved, err := o.resolveTopic(ctx, r, brief)
		if err != nil {
			return res, err
		}
		res.Topic, res.TopicFromBrief = resolved, true
	}

	research, err := o.step(ctx, r, o.research, researchPrompt(res.Topic))
	if err != nil {
		return res, err
	}
	plan, err := o.step(ctx, r, o.plan, planPrompt(res.Topic, research))
	if err != nil {
		return res, err
	}
	draft, err := o.step(ctx, r, o.draft, draftPrompt(res.Topic, plan, research))
	if err != nil {
		return res, err
	}
	report, err := o.step(ctx, r, o.optimize, optimizePrompt(draft))
	if err != nil {
		return res, err
	}
	final, err := o.step(ctx, r, o.finalize, finalizePrompt(draft, report))
	if err != nil {
		return res, err
	}
	res.Text = final
	return res, nil
}

// RunSocial executes research -> platform writer -> social QA, then fits the
// post to the platform's character limit.
func (o *Orchestrator) RunSocial(ctx context.Context, req SocialRequest) (Result, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return Result{}, &models.ValidationError{Field: "topic", Msg: "topic is required"}
	}
	writer, ok := o.social[req.Platform]
	if !ok {
		return Result{}, &models.UnsupportedPlatformError{Platform: string(req.Platform)}
	}

	r := &run{id: uuid.NewString(), flow: "social:" + string(req.Platform), start: time.Now()}
	ctx, span := orchestratorTracer.Start(ctx, "agent.run_social",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("platform", string(req.Platform)),
		))
	defer span.End()

	res := Result{RunID: r.id, Topic: topic}
	text, err := o.socialChain(ctx, r, writer, req.Platform, topic)
	if err == nil {
		res.Text = req.Platform.Fit(helpers.PlainText(text))
	}
	res.Usage, res.Stages = r.usage, r.stages
	o.finish(span, r, topic, err)
	return res, err
}

func (o *Orchestrator) socialChain(ctx context.Context, r *run, writer Runner, p models.Platform, topic string) (string, error) {
	research, err := o.step(ctx, r, o.research, socialResearchPrompt(topic))
	if err != nil {
		return "", err
	}
	draft, err := o.step(ctx, r, writer, socialDraftPrompt(topic, research))
	if err != nil {
		return "", err
	}
	return o.step(ctx, r, o.socialQA, socialQAPrompt(p, draft))
}

// finish records telemetry and the run log line.
func (o *Orchestrator) finish(span trace.Span, r *run, topic string, err error) {
	elapsed := time.Since(r.start)
	o.telemetry.RecordFlowEvent(telemetry.FlowEvent{Flow: r.flow, Usage: r.usage, Duration: elapsed, Success: err == nil})
	span.SetAttributes(
		attribute.Int64("tokens.prompt", r.usage.PromptTokens),
		attribute.Int64("tokens.completion", r.usage.CompletionTokens),
		attribute.Int64("tokens.total", r.usage.Total()),
		attribute.Int("stages.completed", len(r.stages)),
	)
	attrs := []any{
		"run_id", r.id,
		"flow", r.flow,
		"topic", topic,
		"stages", len(r.stages),
		"prompt_tokens", r.usage.PromptTokens,
		"completion_tokens", r.usage.CompletionTokens,
		"total_tokens", r.usage.Total(),
		"duration", elapsed,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("pipeline run failed", append(attrs, "error", err)...)
		return
	}
	span.SetStatus(codes.Ok, "completed")
	o.logger.Info("pipeline run completed", attrs...)
}
