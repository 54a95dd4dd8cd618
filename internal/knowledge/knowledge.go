// Package knowledge provides similarity search over the grounding corpus.
//
// The preferred backend is a pgvector table filled by Ingest. When that
// database cannot be reached at construction, the store serves every query
// from an in-memory full-text index built from the corpus on disk; a failing
// remote query is answered the same way without giving up the remote.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/aeoengine/internal/agent/telemetry"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
)

// ConfigurationError means the store cannot be built at all.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "knowledge configuration: " + e.Msg }

// Embedder produces vectors for texts.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Options configure a Store.
type Options struct {
	// APIKey is the embedding credential; required.
	APIKey         string
	EmbeddingModel string
	Dimensions     int
	CorpusDir      string
	// DB holds the knowledge_documents table. Nil means local-only.
	DB          *sql.DB
	Embedder    Embedder
	Locker      Locker
	Telemetry   *telemetry.Telemetry
	Logger      *slog.Logger
	PingTimeout time.Duration
	// BatchSize is the number of documents embedded per request.
	BatchSize int
}

// IngestReport summarizes a re-index.
type IngestReport struct {
	Documents int           `json:"documents"`
	Skipped   []string      `json:"skipped,omitempty"`
	Remote    bool          `json:"remote"`
	Duration  time.Duration `json:"duration"`
}

// Store answers knowledge searches. Safe for concurrent use.
type Store struct {
	opts   Options
	logger *slog.Logger
	remote *pgIndex // nil when the remote was unreachable at construction

	buildOnce sync.Once
	mu        sync.RWMutex
	local     *localIndex
}

// maxEmbedChars bounds the text sent for one whole-document embedding.
const maxEmbedChars = 24000

// New validates options and selects the backend. An unreachable database is
// not an error; the store then runs on the local index for its lifetime.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &ConfigurationError{Msg: "embedding api key is not set (llm.api_key / AEO_LLM_API_KEY)"}
	}
	if opts.Embedder == nil {
		return nil, &ConfigurationError{Msg: "embedder is required"}
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 1536
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Locker == nil {
		opts.Locker = &LocalLocker{}
	}
	s := &Store{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "knowledge")}

	if opts.DB == nil {
		s.logger.Warn("no knowledge database configured; using local index")
		return s, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := opts.DB.PingContext(pingCtx); err != nil {
		s.logger.Warn("knowledge database unreachable; using local index", "error", err)
		return s, nil
	}
	s.remote = &pgIndex{db: opts.DB}
	return s, nil
}

// Backend names the backend currently preferred: "pgvector" or "local".
func (s *Store) Backend() string {
	if s.remote != nil {
		return "pgvector"
	}
	return "local"
}

// Search returns up to limit snippets, most similar first. Remote failures
// are logged and answered from the local index; the error is always nil.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	if s.remote != nil {
		out, err := s.searchRemote(ctx, query, limit)
		if err == nil {
			return out, nil
		}
		s.logger.Warn("remote knowledge search failed; serving from local index", "error", err)
		s.opts.Telemetry.RecordKnowledgeFallback("query_error")
	} else {
		s.opts.Telemetry.RecordKnowledgeFallback("unreachable")
	}
	return s.searchLocal(query, limit), nil
}

func (s *Store) searchRemote(ctx context.Context, query string, limit int) ([]string, error) {
	vecs, err := s.opts.Embedder.Embed(ctx, s.opts.EmbeddingModel, []string{truncateForEmbedding(query)})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return s.remote.search(ctx, vecs[0], limit)
}

// searchLocal holds s.mu for the whole search so Ingest and Close never
// close an index that is still being read.
func (s *Store) searchLocal(query string, limit int) []string {
	s.buildLocal()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.local == nil {
		return []string{}
	}
	out, err := s.local.search(query, limit)
	if err != nil {
		s.logger.Warn("local knowledge search failed", "error", err)
		return []string{}
	}
	return out
}

// buildLocal builds the fallback index on first use.
func (s *Store) buildLocal() {
	s.buildOnce.Do(func() {
		docs, skipped, err := LoadCorpus(s.opts.CorpusDir)
		if err != nil {
			s.logger.Warn("knowledge corpus unavailable", "dir", s.opts.CorpusDir, "error", err)
		}
		if len(skipped) > 0 {
			s.logger.Warn("knowledge corpus files skipped", "files", skipped)
		}
		li, err := newLocalIndex(docs)
		if err != nil {
			s.logger.Error("build local knowledge index", "error", err)
			return
		}
		s.mu.Lock()
		if s.local == nil {
			s.local = li
		} else {
			li.close()
		}
		s.mu.Unlock()
	})
}

// Ingest re-indexes the corpus in dir (the configured corpus when empty).
// The remote index is replaced wholesale: documents no longer on disk are
// dropped. The local index is rebuilt from the same scan.
func (s *Store) Ingest(ctx context.Context, dir string) (IngestReport, error) {
	if dir == "" {
		dir = s.opts.CorpusDir
	}
	release, ok, err := s.opts.Locker.TryLock(ctx, IngestLockKey, 30*time.Minute)
	if err != nil {
		return IngestReport{}, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return IngestReport{}, ErrIngestInProgress
	}
	defer release()

	started := time.Now()
	docs, skipped, err := LoadCorpus(dir)
	if err != nil {
		return IngestReport{}, err
	}
	report := IngestReport{Documents: len(docs), Skipped: skipped}

	if s.remote != nil {
		vectors, err := s.embedDocuments(ctx, docs)
		if err != nil {
			return IngestReport{}, err
		}
		if err := s.remote.replace(ctx, docs, vectors); err != nil {
			return IngestReport{}, fmt.Errorf("replace knowledge index: %w", err)
		}
		report.Remote = true
	}

	li, err := newLocalIndex(docs)
	if err != nil {
		return IngestReport{}, err
	}
	s.mu.Lock()
	old := s.local
	s.local = li
	s.mu.Unlock()
	s.buildOnce.Do(func() {}) // a fresh scan supersedes the lazy build
	if old != nil {
		old.close()
	}

	report.Duration = time.Since(started)
	s.logger.Info("knowledge ingested",
		"documents", report.Documents,
		"skipped", len(report.Skipped),
		"remote", report.Remote,
		"duration", report.Duration)
	return report, nil
}

func (s *Store) embedDocuments(ctx context.Context, docs []Document) ([][]float32, error) {
	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, truncateForEmbedding(d.Content))
		}
		vecs, err := s.opts.Embedder.Embed(ctx, s.opts.EmbeddingModel, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vecs), len(texts))
		}
		for i, v := range vecs {
			if len(v) != s.opts.Dimensions {
				return nil, fmt.Errorf("document %s: embedding has %d dimensions, want %d", docs[start+i].Path, len(v), s.opts.Dimensions)
			}
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

func truncateForEmbedding(s string) string {
	if len(s) <= maxEmbedChars {
		return s
	}
	return strings.ToValidUTF8(s[:maxEmbedChars], "")
}

// Close releases the local index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil {
		s.local.close()
		s.local = nil
	}
	return nil
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
