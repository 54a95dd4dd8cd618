package models

import (
	"time"
)

// Status is the lifecycle state of a content record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusSocialOnly Status = "SOCIAL_ONLY"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusSocialOnly:
		return true
	}
	return false
}

// Record is the persistent project record for one (user_id, company_url) pair.
// The entry sequences only ever grow.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CompanyURL   string    `json:"company_url"`
	EmailID      *string   `json:"email_id"`
	BrandName    *string   `json:"brand_name"`
	Blogs        []Entry   `json:"blogs"`
	Topic        []Entry   `json:"topic"`
	Status       Status    `json:"status"`
	TwitterPost  []Entry   `json:"twitter_post"`
	LinkedinPost []Entry   `json:"linkedin_post"`
	RedditPost   []Entry   `json:"reddit_post"`
	CreatedAt    time.Time `json:"created_at"`
}

// LatestTopic returns the most recent topic, or "" when none was recorded.
func (r Record) LatestTopic() string {
	if len(r.Topic) == 0 {
		return ""
	}
	return r.Topic[len(r.Topic)-1].Content
}

// LatestBlog returns the most recent blog version, or "".
func (r Record) LatestBlog() string {
	if len(r.Blogs) == 0 {
		return ""
	}
	return r.Blogs[len(r.Blogs)-1].Content
}

// SocialPosts returns the post sequence for p.
func (r Record) SocialPosts(p Platform) []Entry {
	switch p {
	case PlatformTwitter:
		return r.TwitterPost
	case PlatformLinkedIn:
		return r.LinkedinPost
	case PlatformReddit:
		return r.RedditPost
	}
	return nil
}

// Usage is token accounting for one or more generation calls.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Total is prompt plus completion tokens.
func (u Usage) Total() int64 { return u.PromptTokens + u.CompletionTokens }

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}
