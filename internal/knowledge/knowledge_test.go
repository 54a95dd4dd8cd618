package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	dims   int
	calls  int
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, input...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(input))
	for i := range input {
		v := make([]float32, f.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

var sampleCorpus = map[string]string{
	"aeo-rules.md":       "Answer engine optimization rules: lead with a direct answer under fifty words.",
	"brand/voice.txt":    "Brand voice: friendly, concise, never salesy.",
	"notes/ignored.json": `{"not":"indexed"}`,
	".hidden/secret.md":  "hidden answer engine text",
	"empty.markdown":     "   ",
}

func TestNewRequiresEmbeddingKey(t *testing.T) {
	_, err := New(context.Background(), Options{Embedder: &fakeEmbedder{dims: 3}})
	var ce *ConfigurationError
	if !errors.As(err, &ce) || !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestSearchUsesLocalIndexWhenRemoteUnreachable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	emb := &fakeEmbedder{dims: 3}
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: emb, DB: db, CorpusDir: writeCorpus(t, sampleCorpus)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st.Backend() != "local" {
		t.Fatalf("backend = %s", st.Backend())
	}
	out, err := st.Search(context.Background(), "answer engine optimization", 5)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(out) == 0 || !strings.Contains(out[0], "direct answer") {
		t.Fatalf("unexpected results %q", out)
	}
	for _, s := range out {
		if strings.Contains(s, "hidden") {
			t.Fatalf("hidden directory was indexed")
		}
	}
	if got, _ := st.Search(context.Background(), "answer", 0); len(got) != 0 {
		t.Fatalf("limit 0 must return nothing")
	}
	if emb.calls != 0 {
		t.Fatalf("local search must not embed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchMissingCorpusStillSucceeds(t *testing.T) {
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 3}, CorpusDir: filepath.Join(t.TempDir(), "absent")})
	if err != nil {
		t.Fatal(err)
	}
	out, err := st.Search(context.Background(), "anything", 3)
	if err != nil || len(out) != 0 {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestSearchRemoteNormalizesPayloads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, DB: db, CorpusDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if st.Backend() != "pgvector" {
		t.Fatalf("backend = %s", st.Backend())
	}
	rows := sqlmock.NewRows([]string{"payload", "distance"}).
		AddRow([]byte(`{"content":"first","name":"a"}`), 0.1).
		AddRow([]byte(`{"text":"second","brand":"b"}`), 0.2).
		AddRow([]byte(`{"content_preview":"third"}`), 0.3).
		AddRow([]byte(`{"name":"no content"}`), 0.4)
	mock.ExpectQuery(regexp.QuoteMeta(searchSQL)).WithArgs("[1,0]", 4).WillReturnRows(rows)

	out, err := st.Search(context.Background(), "q", 4)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(out, "|") != "first|second|third" {
		t.Fatalf("unexpected snippets %q", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchFallsBackOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, DB: db, CorpusDir: writeCorpus(t, sampleCorpus)})
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(searchSQL)).WillReturnError(errors.New("server closed the connection"))

	out, err := st.Search(context.Background(), "brand voice", 2)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(out) == 0 || !strings.Contains(out[0], "Brand voice") {
		t.Fatalf("expected local answer, got %q", out)
	}
	if st.Backend() != "pgvector" {
		t.Fatalf("query failure must not demote the remote")
	}
}

func TestIngestReplacesRemoteIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	dir := writeCorpus(t, sampleCorpus)
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, Dimensions: 2, DB: db, CorpusDir: dir, BatchSize: 1})
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM knowledge_documents`)).WillReturnResult(sqlmock.NewResult(0, 7))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertSQL))
	prep.ExpectExec().WithArgs(documentID("aeo-rules.md"), "aeo-rules", sqlmock.AnyArg(), "[1,0]").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(documentID("brand/voice.txt"), "voice", sqlmock.AnyArg(), "[1,0]").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := st.Ingest(context.Background(), "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Documents != 2 || !report.Remote || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIngestRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, Dimensions: 2, DB: db, CorpusDir: writeCorpus(t, map[string]string{"a.md": "alpha"})})
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM knowledge_documents`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(insertSQL)).ExpectExec().WillReturnError(errors.New("dimension mismatch"))
	mock.ExpectRollback()

	if _, err := st.Ingest(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIngestRejectsWrongDimensions(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 4}, Dimensions: 2, DB: db, CorpusDir: writeCorpus(t, map[string]string{"a.md": "alpha"})})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Ingest(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestIngestLocalOnlyRebuildsIndex(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.md": "alpha topic"})
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, CorpusDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := st.Search(context.Background(), "zebra", 3); len(out) != 0 {
		t.Fatalf("unexpected hit before ingest: %q", out)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.md"), []byte("zebra crossing facts"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err := st.Ingest(context.Background(), "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Remote || report.Documents != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if out, _ := st.Search(context.Background(), "zebra", 3); len(out) != 1 {
		t.Fatalf("ingest did not refresh local index: %q", out)
	}
}

func TestIngestHonoursLock(t *testing.T) {
	locker := &LocalLocker{}
	release, ok, _ := locker.TryLock(context.Background(), IngestLockKey, 0)
	if !ok {
		t.Fatal("could not take lock")
	}
	defer release()
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, CorpusDir: t.TempDir(), Locker: locker})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Ingest(context.Background(), ""); !errors.Is(err, ErrIngestInProgress) {
		t.Fatalf("expected ErrIngestInProgress, got %v", err)
	}
}

func TestSearchRemoteCapsQueryLength(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	emb := &fakeEmbedder{dims: 2}
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: emb, Dimensions: 2, DB: db, CorpusDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(searchSQL)).WithArgs("[1,0]", 3).
		WillReturnRows(sqlmock.NewRows([]string{"payload", "distance"}).AddRow([]byte(`{"content":"hit"}`), 0.1))

	if _, err := st.Search(context.Background(), strings.Repeat("long grounding query ", 5000), 3); err != nil {
		t.Fatal(err)
	}
	if len(emb.inputs) != 1 || len(emb.inputs[0]) > maxEmbedChars {
		t.Fatalf("query sent to embedder was not capped: %d inputs", len(emb.inputs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchDuringIngestNeverHitsClosedIndex(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"brand.md": "Brand voice is friendly and direct."})
	st, err := New(context.Background(), Options{APIKey: "k", Embedder: &fakeEmbedder{dims: 2}, CorpusDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	var (
		wg     sync.WaitGroup
		misses int
		mu     sync.Mutex
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				out, _ := st.Search(context.Background(), "brand voice", 1)
				if len(out) == 0 {
					mu.Lock()
					misses++
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if _, err := st.Ingest(context.Background(), ""); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	wg.Wait()
	if misses != 0 {
		t.Fatalf("%d searches returned nothing while the index was swapped", misses)
	}
}

func TestLoadCorpusExtractsPDFText(t *testing.T) {
	docs, skipped, err := LoadCorpus(filepath.Join("testdata", "corpus"))
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped files %v", skipped)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	pdfDoc := docs[0]
	if pdfDoc.Path != "brand-guide.pdf" || pdfDoc.Name != "brand-guide" {
		t.Fatalf("unexpected document %+v", pdfDoc)
	}
	if !strings.Contains(pdfDoc.Content, "Brand voice is friendly") {
		t.Fatalf("pdf text not extracted: %q", pdfDoc.Content)
	}
	if docs[1].Path != "rules.md" {
		t.Fatalf("documents not sorted by path: %q", docs[1].Path)
	}
}
