package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/aeoengine/models"
)

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("record not found")

// Store persists content records in Postgres.
type Store struct {
	DB *sql.DB

	now func() time.Time
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// NewWithDSN opens the database and checks connectivity.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) timestamp() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

const recordColumns = `id, user_id, company_url, email_id, brand_name, blogs, topic, status, twitter_post, linkedin_post, reddit_post, created_at`

const insertRecordSQL = `
INSERT INTO blogs (id, user_id, company_url, email_id, brand_name, blogs, topic, status, twitter_post, linkedin_post, reddit_post, created_at)
VALUES ($1,$2,$3,$4,$5,'[]'::jsonb,$6,$7,'[]'::jsonb,'[]'::jsonb,'[]'::jsonb,$8)
ON CONFLICT (user_id, company_url) DO NOTHING
RETURNING ` + recordColumns

const lockByKeySQL = `SELECT ` + recordColumns + ` FROM blogs WHERE user_id=$1 AND company_url=$2 FOR UPDATE`

const lockByIDSQL = `SELECT ` + recordColumns + ` FROM blogs WHERE id=$1 FOR UPDATE`

const getByIDSQL = `SELECT ` + recordColumns + ` FROM blogs WHERE id=$1`

const latestSQL = `SELECT ` + recordColumns + ` FROM blogs WHERE user_id=$1 AND company_url=$2 ORDER BY created_at DESC LIMIT 1`

// FindOrCreateParams identifies the record and the topic that triggered the request.
type FindOrCreateParams struct {
	UserID     string
	CompanyURL string
	// Topic is appended to the topic history unless already present verbatim.
	// Empty when the topic is resolved later from a brief.
	Topic     string
	IsPrompt  bool
	EmailID   *string
	BrandName *string
	// Status of a newly created record. Defaults to PENDING.
	Status models.Status
}

// FindOrCreate returns the record for (UserID, CompanyURL), creating it when
// absent. Concurrent first-time callers converge on a single row through the
// unique key; the loser re-reads the winner's row under lock.
func (s *Store) FindOrCreate(ctx context.Context, p FindOrCreateParams) (rec models.Record, err error) {
	status := p.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return models.Record{}, fmt.Errorf("invalid status %q", status)
	}
	now := s.timestamp()

	topics := []models.Entry{}
	if p.Topic != "" {
		topics = append(topics, models.NewTopicEntry(p.Topic, p.IsPrompt, now))
	}
	topicJSON, err := json.Marshal(topics)
	if err != nil {
		return models.Record{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err = scanRecord(tx.QueryRowContext(ctx, insertRecordSQL,
		uuid.NewString(), p.UserID, p.CompanyURL, p.EmailID, p.BrandName, string(topicJSON), string(status), now))
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		rec, err = scanRecord(tx.QueryRowContext(ctx, lockByKeySQL, p.UserID, p.CompanyURL))
		if err != nil {
			return models.Record{}, fmt.Errorf("reload record: %w", err)
		}
		if p.Topic != "" && !models.ContainsContent(rec.Topic, p.Topic) {
			rec.Topic = append(rec.Topic, models.NewTopicEntry(p.Topic, p.IsPrompt, now))
			if err = updateColumn(ctx, tx, rec.ID, "topic", rec.Topic); err != nil {
				return models.Record{}, err
			}
		}
	default:
		return models.Record{}, fmt.Errorf("insert record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// AppendContent records a finished blog version, appends topic if it is new
// and marks the record COMPLETED.
func (s *Store) AppendContent(ctx context.Context, id, text, topic string, isPrompt bool) (rec models.Record, err error) {
	now := s.timestamp()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err = lockByID(ctx, tx, id)
	if err != nil {
		return models.Record{}, err
	}
	rec.Blogs = append(rec.Blogs, models.NewEntry(text, now))
	if topic != "" && !models.ContainsContent(rec.Topic, topic) {
		rec.Topic = append(rec.Topic, models.NewTopicEntry(topic, isPrompt, now))
	}
	rec.Status = models.StatusCompleted

	blogsJSON, err := json.Marshal(rec.Blogs)
	if err != nil {
		return models.Record{}, err
	}
	topicJSON, err := json.Marshal(rec.Topic)
	if err != nil {
		return models.Record{}, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE blogs SET blogs=$2, topic=$3, status=$4 WHERE id=$1`,
		id, string(blogsJSON), string(topicJSON), string(rec.Status)); err != nil {
		return models.Record{}, fmt.Errorf("append content: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// MarkFailed sets status FAILED and leaves every sequence untouched.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE blogs SET status=$2 WHERE id=$1`, id, string(models.StatusFailed))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSocialPost appends text to the platform's post sequence. Status is not changed.
func (s *Store) AppendSocialPost(ctx context.Context, id string, platform models.Platform, text string) (rec models.Record, err error) {
	column := platform.Column()
	if column == "" {
		return models.Record{}, &models.UnsupportedPlatformError{Platform: string(platform)}
	}
	now := s.timestamp()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err = lockByID(ctx, tx, id)
	if err != nil {
		return models.Record{}, err
	}
	posts := append(rec.SocialPosts(platform), models.NewEntry(text, now))
	switch platform {
	case models.PlatformTwitter:
		rec.TwitterPost = posts
	case models.PlatformLinkedIn:
		rec.LinkedinPost = posts
	case models.PlatformReddit:
		rec.RedditPost = posts
	}
	if err = updateColumn(ctx, tx, id, column, posts); err != nil {
		return models.Record{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id string) (models.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Record{}, ErrNotFound
	}
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, getByIDSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, ErrNotFound
	}
	return rec, err
}

// Latest returns the newest record for the (user, company) key.
func (s *Store) Latest(ctx context.Context, userID, companyURL string) (models.Record, error) {
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, latestSQL, userID, companyURL))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, ErrNotFound
	}
	return rec, err
}

func lockByID(ctx context.Context, tx *sql.Tx, id string) (models.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Record{}, ErrNotFound
	}
	rec, err := scanRecord(tx.QueryRowContext(ctx, lockByIDSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, ErrNotFound
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("lock record: %w", err)
	}
	return rec, nil
}

// updateColumn rewrites one jsonb sequence column. column comes from a fixed
// set (topic or Platform.Column) and is never caller input. JSON is bound as
// text; lib/pq sends []byte in binary format, which jsonb rejects.
func updateColumn(ctx context.Context, tx *sql.Tx, id, column string, entries []models.Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE blogs SET `+column+`=$2 WHERE id=$1`, id, string(raw)); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.Record, error) {
	var (
		rec                                 models.Record
		email, brand                        sql.NullString
		status                              string
		blogs, topic, twitter, linkedin, rd []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.CompanyURL, &email, &brand,
		&blogs, &topic, &status, &twitter, &linkedin, &rd, &rec.CreatedAt); err != nil {
		return models.Record{}, err
	}
	if email.Valid {
		rec.EmailID = &email.String
	}
	if brand.Valid {
		rec.BrandName = &brand.String
	}
	rec.Status = models.Status(status)
	created := rec.CreatedAt.UTC()
	rec.CreatedAt = created
	rec.Topic = models.NormalizeEntries(json.RawMessage(topic), created)
	rec.Blogs = models.StripPromptFlag(models.NormalizeEntries(json.RawMessage(blogs), created))
	rec.TwitterPost = models.StripPromptFlag(models.NormalizeEntries(json.RawMessage(twitter), created))
	rec.LinkedinPost = models.StripPromptFlag(models.NormalizeEntries(json.RawMessage(linkedin), created))
	rec.RedditPost = models.StripPromptFlag(models.NormalizeEntries(json.RawMessage(rd), created))
	return rec, nil
}
