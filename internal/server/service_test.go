package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	core "github.com/mohammad-safakhou/aeoengine/internal/agent/core"
	"github.com/mohammad-safakhou/aeoengine/internal/store"
	"github.com/mohammad-safakhou/aeoengine/models"
)

// memStore is an in-memory RecordStore keyed like the real table.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
	calls     []string
	markErr   error
	appendErr error
}

func newMemStore() *memStore { return &memStore{records: map[string]*models.Record{}} }

func (m *memStore) key(userID, companyURL string) string { return userID + "|" + companyURL }

func (m *memStore) FindOrCreate(_ context.Context, p store.FindOrCreateParams) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "find_or_create")
	now := time.Now().UTC()
	rec, ok := m.records[m.key(p.UserID, p.CompanyURL)]
	if !ok {
		rec = &models.Record{
			ID: "rec-" + p.UserID, UserID: p.UserID, CompanyURL: p.CompanyURL,
			EmailID: p.EmailID, BrandName: p.BrandName, Status: p.Status, CreatedAt: now,
			Blogs: []models.Entry{}, Topic: []models.Entry{},
		}
		m.records[m.key(p.UserID, p.CompanyURL)] = rec
	}
	if p.Topic != "" && !models.ContainsContent(rec.Topic, p.Topic) {
		rec.Topic = append(rec.Topic, models.NewTopicEntry(p.Topic, p.IsPrompt, now))
	}
	return *rec, nil
}

func (m *memStore) byID(id string) *models.Record {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *memStore) AppendContent(_ context.Context, id, text, topic string, isPrompt bool) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "append_content")
	if m.appendErr != nil {
		return models.Record{}, m.appendErr
	}
	rec := m.byID(id)
	if rec == nil {
		return models.Record{}, store.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Blogs = append(rec.Blogs, models.NewEntry(text, now))
	if topic != "" && !models.ContainsContent(rec.Topic, topic) {
		rec.Topic = append(rec.Topic, models.NewTopicEntry(topic, isPrompt, now))
	}
	rec.Status = models.StatusCompleted
	return *rec, nil
}

func (m *memStore) MarkFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "mark_failed")
	if m.markErr != nil {
		return m.markErr
	}
	rec := m.byID(id)
	if rec == nil {
		return store.ErrNotFound
	}
	rec.Status = models.StatusFailed
	return nil
}

func (m *memStore) AppendSocialPost(_ context.Context, id string, p models.Platform, text string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "append_social")
	rec := m.byID(id)
	if rec == nil {
		return models.Record{}, store.ErrNotFound
	}
	e := models.NewEntry(text, time.Now())
	switch p {
	case models.PlatformTwitter:
		rec.TwitterPost = append(rec.TwitterPost, e)
	case models.PlatformLinkedIn:
		rec.LinkedinPost = append(rec.LinkedinPost, e)
	case models.PlatformReddit:
		rec.RedditPost = append(rec.RedditPost, e)
	}
	return *rec, nil
}

func (m *memStore) Get(_ context.Context, id string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.byID(id); rec != nil {
		return *rec, nil
	}
	return models.Record{}, store.ErrNotFound
}

func (m *memStore) Latest(_ context.Context, userID, companyURL string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[m.key(userID, companyURL)]; ok {
		return *rec, nil
	}
	return models.Record{}, store.ErrNotFound
}

type fakePipeline struct {
	blogErr   error
	socialErr error
	blogs     []core.BlogRequest
	socials   []core.SocialRequest
}

func (f *fakePipeline) RunBlog(_ context.Context, req core.BlogRequest) (core.Result, error) {
	f.blogs = append(f.blogs, req)
	if f.blogErr != nil {
		return core.Result{}, f.blogErr
	}
	res := core.Result{RunID: "run-1", Topic: req.Topic, Text: "# Final post"}
	if res.Topic == "" {
		res.Topic, res.TopicFromBrief = "distilled topic", true
	}
	return res, nil
}

func (f *fakePipeline) RunSocial(_ context.Context, req core.SocialRequest) (core.Result, error) {
	f.socials = append(f.socials, req)
	if f.socialErr != nil {
		return core.Result{}, f.socialErr
	}
	return core.Result{RunID: "run-2", Topic: req.Topic, Text: "post for " + string(req.Platform)}, nil
}

func TestGenerateBlogFromTopic(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)

	brand := "  <b>Acme</b> "
	rec, res, err := svc.GenerateBlog(context.Background(), BlogInput{
		Topic: " zero-click search ", UserID: "u1", CompanyURL: "acme.test", BrandName: &brand,
	})
	if err != nil {
		t.Fatalf("GenerateBlog: %v", err)
	}
	if res.RunID != "run-1" || rec.Status != models.StatusCompleted {
		t.Fatalf("unexpected result %+v / %+v", res, rec)
	}
	if got := models.Contents(rec.Topic); len(got) != 1 || got[0] != "zero-click search" {
		t.Fatalf("topics = %v", got)
	}
	if len(rec.Blogs) != 1 || rec.Blogs[0].Content != "# Final post" {
		t.Fatalf("blogs = %+v", rec.Blogs)
	}
	if rec.BrandName == nil || *rec.BrandName != "Acme" {
		t.Fatalf("brand = %v", rec.BrandName)
	}
	if pipe.blogs[0].Topic != "zero-click search" {
		t.Fatalf("pipeline topic = %q", pipe.blogs[0].Topic)
	}
}

func TestGenerateBlogFromBriefRecordsPromptTopic(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)

	rec, _, err := svc.GenerateBlog(context.Background(), BlogInput{
		Prompt: "We sell running shoes and want more visibility", UserID: "u1", CompanyURL: "acme.test",
	})
	if err != nil {
		t.Fatalf("GenerateBlog: %v", err)
	}
	if len(rec.Topic) != 1 || rec.Topic[0].Content != "distilled topic" {
		t.Fatalf("topics = %+v", rec.Topic)
	}
	if p := rec.Topic[0].IsPrompt; p == nil || !*p {
		t.Fatalf("distilled topic should carry is_prompt=true")
	}
}

func TestGenerateBlogRepeatedKeepsOneRecord(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)
	ctx := context.Background()

	first, _, err := svc.GenerateBlog(ctx, BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _, err := svc.GenerateBlog(ctx, BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID || len(st.records) != 1 {
		t.Fatalf("expected one record, got %d", len(st.records))
	}
	if len(second.Topic) != 1 || len(second.Blogs) != 2 {
		t.Fatalf("topic %d blogs %d, want 1 and 2", len(second.Topic), len(second.Blogs))
	}
}

func TestGenerateBlogValidation(t *testing.T) {
	cases := []BlogInput{
		{UserID: "u1", CompanyURL: "c"},
		{Topic: "t", CompanyURL: "c"},
		{Topic: "t", UserID: "u1"},
		{Topic: "   ", Prompt: "\n", UserID: "u1", CompanyURL: "c"},
	}
	for _, in := range cases {
		st, pipe := newMemStore(), &fakePipeline{}
		svc := NewContentService(st, pipe, nil)
		_, _, err := svc.GenerateBlog(context.Background(), in)
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%+v: err = %v, want ValidationError", in, err)
		}
		if len(st.calls) != 0 || len(pipe.blogs) != 0 {
			t.Fatalf("%+v: side effects on validation failure: %v", in, st.calls)
		}
	}
}

func TestGenerateBlogFailureMarksRecordFailed(t *testing.T) {
	genErr := &core.GenerationError{Stage: core.StageDraft, Err: context.DeadlineExceeded}
	st, pipe := newMemStore(), &fakePipeline{blogErr: genErr}
	svc := NewContentService(st, pipe, nil)

	_, _, err := svc.GenerateBlog(context.Background(), BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"})
	if !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want generation error", err)
	}
	rec, _ := st.Latest(context.Background(), "u1", "c")
	if rec.Status != models.StatusFailed || len(rec.Blogs) != 0 {
		t.Fatalf("record after failure: %+v", rec)
	}
}

func TestGenerateBlogMarkFailedErrorIsJoined(t *testing.T) {
	genErr := &core.GenerationError{Stage: core.StageResearch, Err: errors.New("provider down")}
	st, pipe := newMemStore(), &fakePipeline{blogErr: genErr}
	st.markErr = errors.New("db gone")
	svc := NewContentService(st, pipe, nil)

	_, _, err := svc.GenerateBlog(context.Background(), BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"})
	var ge *core.GenerationError
	if !errors.As(err, &ge) || ge.Stage != core.StageResearch {
		t.Fatalf("original error masked: %v", err)
	}
	if !errors.Is(err, st.markErr) {
		t.Fatalf("mark error not reported: %v", err)
	}
}

func TestGenerateBlogStoreFailureMarksRecordFailed(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	st.appendErr = errors.New("connection reset")
	svc := NewContentService(st, pipe, nil)

	_, _, err := svc.GenerateBlog(context.Background(), BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"})
	if !errors.Is(err, st.appendErr) {
		t.Fatalf("err = %v, want storage error", err)
	}
	rec, _ := st.Latest(context.Background(), "u1", "c")
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
	if got := st.calls[len(st.calls)-1]; got != "mark_failed" {
		t.Fatalf("last store call = %s", got)
	}
}

func TestGenerateSocialUnknownPlatformHasNoSideEffects(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)

	_, _, err := svc.GenerateSocial(context.Background(), SocialInput{Topic: "t", Platform: "mastodon", UserID: "u1", CompanyURL: "c"})
	var upe *models.UnsupportedPlatformError
	if !errors.As(err, &upe) || upe.Platform != "mastodon" {
		t.Fatalf("err = %v, want UnsupportedPlatformError", err)
	}
	if len(pipe.socials) != 0 || len(st.calls) != 0 {
		t.Fatalf("side effects: pipeline %d store %v", len(pipe.socials), st.calls)
	}
}

func TestGenerateSocialCreatesSocialOnlyRecord(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)

	rec, res, err := svc.GenerateSocial(context.Background(), SocialInput{Topic: "t", Platform: "LinkedIn", UserID: "u1", CompanyURL: "c"})
	if err != nil {
		t.Fatalf("GenerateSocial: %v", err)
	}
	if rec.Status != models.StatusSocialOnly {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.LinkedinPost) != 1 || rec.LinkedinPost[0].Content != res.Text {
		t.Fatalf("linkedin posts = %+v", rec.LinkedinPost)
	}
}

func TestGenerateSocialKeepsExistingStatus(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{}
	svc := NewContentService(st, pipe, nil)
	ctx := context.Background()

	if _, _, err := svc.GenerateBlog(ctx, BlogInput{Topic: "t", UserID: "u1", CompanyURL: "c"}); err != nil {
		t.Fatalf("GenerateBlog: %v", err)
	}
	rec, _, err := svc.GenerateSocial(ctx, SocialInput{Topic: "t", Platform: "twitter", UserID: "u1", CompanyURL: "c"})
	if err != nil {
		t.Fatalf("GenerateSocial: %v", err)
	}
	if rec.Status != models.StatusCompleted || len(rec.Blogs) != 1 || len(rec.TwitterPost) != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestGenerateSocialFailureWritesNothing(t *testing.T) {
	st, pipe := newMemStore(), &fakePipeline{socialErr: &core.GenerationError{Stage: core.StageSocialQA, Err: core.ErrEmptyOutput}}
	svc := NewContentService(st, pipe, nil)

	if _, _, err := svc.GenerateSocial(context.Background(), SocialInput{Topic: "t", Platform: "reddit", UserID: "u1", CompanyURL: "c"}); err == nil {
		t.Fatal("expected error")
	}
	if len(st.calls) != 0 {
		t.Fatalf("store touched: %v", st.calls)
	}
}
