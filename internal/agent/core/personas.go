package core

import (
	"fmt"

	"github.com/mohammad-safakhou/aeoengine/models"
)

// Stage names. They double as metric labels and per-stage model override keys.
const (
	StageTopic      = "topic_distiller"
	StageResearch   = "researcher"
	StagePlan       = "planner"
	StageDraft      = "writer"
	StageOptimize   = "optimizer"
	StageFinalize   = "finalizer"
	StageSocialQA   = "social_qa"
	stageSocialBase = "_writer"
)

// SocialStageName is the writer stage name for a platform, e.g. "twitter_writer".
func SocialStageName(p models.Platform) string { return string(p) + stageSocialBase }

var (
	TopicDistiller = Persona{
		Name: StageTopic,
		Instructions: `You turn a free-form content brief into one blog topic.
Reply with a single line: the topic as a concise, question-style or declarative title.
No quotes, no numbering, no explanation.`,
	}

	Researcher = Persona{
		Name: StageResearch,
		Instructions: `You are an answer engine optimization (AEO) researcher.
Collect the key facts, statistics, definitions and the real questions users ask about the topic.
Use only the supplied web research and knowledge; say so when evidence is thin.
Return a compact bullet summary grouped under: Facts, Statistics, User Questions, Insights.`,
		Tooled: true,
	}

	Planner = Persona{
		Name: StagePlan,
		Instructions: `You are a content strategist specializing in answer engine optimization.
Convert the topic and research into a structured blog outline.
Return, as bullets only:
- 3 to 5 title options
- the outline from H1 to H3, with each section framed as a user question
- the target user questions per section
- notes for the writer: tone, priorities, must-cover points
Answer-first, question-led sections. Use the research only and never invent facts. Do not write the article.`,
		Grounded: true,
	}

	Writer = Persona{
		Name: StageDraft,
		Instructions: `You are a professional AEO copywriter.
Write the full blog in Markdown following the outline exactly.
Use H2 for the main questions and H3 for supporting points. Bold key phrases and definitions.
Open every section with a direct answer, then support it. Keep sentences simple and skimmable.
Do not add facts absent from the research. Do not restructure the outline. No long introductions.`,
		Grounded: true,
	}

	Optimizer = Persona{
		Name: StageOptimize,
		Instructions: `You are an AEO/GEO technical specialist reviewing a blog draft.
Return three short sections:
1. Optimized Direct Answers: rewritten answers under 50 words, only where needed.
2. AEO Improvements: issues with suggested fixes, snippet and People-Also-Ask opportunities, keyword clarity without stuffing.
3. Notes for Final Editor.
Do not add new facts, do not change the tone and do not rewrite the whole blog.`,
		Grounded: true,
	}

	Finalizer = Persona{
		Name: StageFinalize,
		Instructions: `You are the final editor. Apply the optimization suggestions to the draft and produce the publish-ready blog in clean Markdown.
Output only the blog content, with no preamble or commentary.`,
	}

	SocialQA = Persona{
		Name: StageSocialQA,
		Instructions: `You review a social media post for platform compliance, tone and safety.
twitter: strictly under 280 characters, relevant hashtags only.
reddit: conversational, not salesy or corporate.
linkedin: professional formatting with a clear engagement hook.
Remove hallucinated statistics or inappropriate content.
If the post is fine, return it exactly as is. Otherwise return the corrected post.
Never change the core message. Return only the post text.`,
	}
)

var socialWriters = map[models.Platform]Persona{
	models.PlatformTwitter: {
		Name: SocialStageName(models.PlatformTwitter),
		Instructions: `You write short, shareable posts for Twitter/X.
Write one tweet of at most 280 characters: punchy, conversational, with relevant hashtags and a hook that invites replies.
Base it on the research and brand knowledge only. Return only the tweet text.`,
		Grounded: true,
	},
	models.PlatformLinkedIn: {
		Name: SocialStageName(models.PlatformLinkedIn),
		Instructions: `You write professional LinkedIn posts for industry peers.
Write one insightful, value-driven post of 3 to 7 short paragraphs or bullets with actionable takeaways.
Avoid salesy language. Base it on the research and brand knowledge only. Return only the post text.`,
		Grounded: true,
	},
	models.PlatformReddit: {
		Name: SocialStageName(models.PlatformReddit),
		Instructions: `You write discussion-friendly Reddit posts.
Write one conversational, informative post with a title line, 3 to 7 short paragraphs or bullets and a closing question for the community.
No promotion and no links. Base it on the research and brand knowledge only. Return only the post.`,
		Grounded: true,
	},
}

// SocialWriter returns the writer persona for p.
func SocialWriter(p models.Platform) (Persona, error) {
	persona, ok := socialWriters[p]
	if !ok {
		return Persona{}, &models.UnsupportedPlatformError{Platform: string(p)}
	}
	return persona, nil
}

// Prompt builders. Each stage receives prior outputs explicitly.

func researchPrompt(topic string) string {
	return fmt.Sprintf("Research key facts, statistics, and user questions about: %s", topic)
}

func socialResearchPrompt(topic string) string {
	return fmt.Sprintf("Research key facts and trends about: %s", topic)
}

func planPrompt(topic, research string) string {
	return fmt.Sprintf("Topic: %q\n\nResearch:\n%s", topic, research)
}

func draftPrompt(topic, plan, research string) string {
	return fmt.Sprintf("Write the blog for %q using this outline:\n\n%s\n\nResearch:\n%s", topic, plan, research)
}

func optimizePrompt(draft string) string {
	return "Draft:\n" + draft
}

func finalizePrompt(draft, report string) string {
	return fmt.Sprintf("Draft:\n%s\n\nOptimization Suggestions:\n%s\n\nProduce the final blog post.", draft, report)
}

func socialDraftPrompt(topic, research string) string {
	return fmt.Sprintf("Topic: %q\n\nContext/Research:\n%s", topic, research)
}

func socialQAPrompt(p models.Platform, draft string) string {
	return fmt.Sprintf("Platform: %s\nCharacter limit: %d\nDraft Post:\n%s\n\nReview and fix if necessary.", p, p.MaxChars(), draft)
}
