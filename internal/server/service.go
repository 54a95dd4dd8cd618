package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	core "github.com/mohammad-safakhou/aeoengine/internal/agent/core"
	"github.com/mohammad-safakhou/aeoengine/internal/helpers"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/internal/store"
	"github.com/mohammad-safakhou/aeoengine/models"
)

// RecordStore is the persistence the content service needs.
type RecordStore interface {
	FindOrCreate(ctx context.Context, p store.FindOrCreateParams) (models.Record, error)
	AppendContent(ctx context.Context, id, text, topic string, isPrompt bool) (models.Record, error)
	MarkFailed(ctx context.Context, id string) error
	AppendSocialPost(ctx context.Context, id string, platform models.Platform, text string) (models.Record, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Latest(ctx context.Context, userID, companyURL string) (models.Record, error)
}

// Pipeline runs the generation flows.
type Pipeline interface {
	RunBlog(ctx context.Context, req core.BlogRequest) (core.Result, error)
	RunSocial(ctx context.Context, req core.SocialRequest) (core.Result, error)
}

// BlogInput is a request for a new long-form version.
type BlogInput struct {
	Topic      string  `json:"topic"`
	Prompt     string  `json:"prompt"`
	UserID     string  `json:"user_id"`
	CompanyURL string  `json:"company_url"`
	EmailID    *string `json:"email_id"`
	BrandName  *string `json:"brand_name"`
}

// SocialInput is a request for one platform post.
type SocialInput struct {
	Topic      string `json:"topic"`
	Platform   string `json:"platform"`
	UserID     string `json:"user_id"`
	CompanyURL string `json:"company_url"`
}

// ContentService ties the pipeline to the record store.
type ContentService struct {
	Store    RecordStore
	Pipeline Pipeline
	Logger   *slog.Logger
}

func NewContentService(st RecordStore, p Pipeline, logger *slog.Logger) *ContentService {
	return &ContentService{Store: st, Pipeline: p, Logger: logging.NewComponentLogger(logger, "content")}
}

// GenerateBlog validates in, makes sure the record exists, runs the blog flow
// and stores the result. A generation or storage failure marks the record
// FAILED and is returned; a failure to mark it is joined, never substituted.
func (s *ContentService) GenerateBlog(ctx context.Context, in BlogInput) (models.Record, core.Result, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := requireOwner(in.UserID, in.CompanyURL); err != nil {
		return models.Record{}, core.Result{}, err
	}
	if in.Topic == "" && in.Prompt == "" {
		return models.Record{}, core.Result{}, &models.ValidationError{Field: "topic", Msg: "either topic or prompt is required"}
	}
	in.EmailID = trimOptional(in.EmailID)
	if in.BrandName = trimOptional(in.BrandName); in.BrandName != nil {
		brand := helpers.PlainText(*in.BrandName)
		in.BrandName = &brand
	}

	rec, err := s.Store.FindOrCreate(ctx, store.FindOrCreateParams{
		UserID:     in.UserID,
		CompanyURL: in.CompanyURL,
		Topic:      in.Topic,
		EmailID:    in.EmailID,
		BrandName:  in.BrandName,
		Status:     models.StatusPending,
	})
	if err != nil {
		return models.Record{}, core.Result{}, err
	}

	res, err := s.Pipeline.RunBlog(ctx, core.BlogRequest{Topic: in.Topic, Brief: in.Prompt})
	if err != nil {
		return rec, res, s.markFailed(ctx, rec.ID, err)
	}

	stored, err := s.Store.AppendContent(ctx, rec.ID, res.Text, res.Topic, res.TopicFromBrief)
	if err != nil {
		return rec, res, s.markFailed(ctx, rec.ID, fmt.Errorf("store blog: %w", err))
	}
	rec = stored
	s.Logger.Info("blog stored", "record_id", rec.ID, "run_id", res.RunID, "versions", len(rec.Blogs))
	return rec, res, nil
}

// markFailed sets the record FAILED and returns cause, joined with the mark
// error if that write fails too. The request context may already be done;
// the status write must still land.
func (s *ContentService) markFailed(ctx context.Context, id string, cause error) error {
	if markErr := s.Store.MarkFailed(context.WithoutCancel(ctx), id); markErr != nil {
		s.Logger.Error("mark record failed", "record_id", id, "error", markErr)
		return errors.Join(cause, markErr)
	}
	return cause
}

// GenerateSocial runs the social flow and appends the post to the record for
// (user, company), creating it SOCIAL_ONLY when absent. Nothing is written
// when generation fails.
func (s *ContentService) GenerateSocial(ctx context.Context, in SocialInput) (models.Record, core.Result, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	if err := requireOwner(in.UserID, in.CompanyURL); err != nil {
		return models.Record{}, core.Result{}, err
	}
	if in.Topic == "" {
		return models.Record{}, core.Result{}, &models.ValidationError{Field: "topic", Msg: "topic is required"}
	}
	platform, err := models.ParsePlatform(in.Platform)
	if err != nil {
		return models.Record{}, core.Result{}, err
	}

	res, err := s.Pipeline.RunSocial(ctx, core.SocialRequest{Topic: in.Topic, Platform: platform})
	if err != nil {
		return models.Record{}, res, err
	}

	rec, err := s.Store.FindOrCreate(ctx, store.FindOrCreateParams{
		UserID:     in.UserID,
		CompanyURL: in.CompanyURL,
		Topic:      in.Topic,
		Status:     models.StatusSocialOnly,
	})
	if err != nil {
		return models.Record{}, res, err
	}
	rec, err = s.Store.AppendSocialPost(ctx, rec.ID, platform, res.Text)
	if err != nil {
		return models.Record{}, res, err
	}
	return rec, res, nil
}

func (s *ContentService) Get(ctx context.Context, id string) (models.Record, error) {
	return s.Store.Get(ctx, id)
}

func (s *ContentService) Latest(ctx context.Context, userID, companyURL string) (models.Record, error) {
	if err := requireOwner(userID, companyURL); err != nil {
		return models.Record{}, err
	}
	return s.Store.Latest(ctx, userID, companyURL)
}

func requireOwner(userID, companyURL string) error {
	if strings.TrimSpace(userID) == "" {
		return &models.ValidationError{Field: "user_id", Msg: "user_id is required"}
	}
	if strings.TrimSpace(companyURL) == "" {
		return &models.ValidationError{Field: "company_url", Msg: "company_url is required"}
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
