package knowledge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
)

// maxSnippet caps the size of a single snippet returned to a prompt.
const maxSnippet = 4000

type indexedDoc struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// localIndex is an in-memory full-text index over the corpus on disk.
type localIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]Document
}

func newLocalIndex(docs []Document) (*localIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve index: %w", err)
	}
	li := &localIndex{index: index, docs: make(map[string]Document, len(docs))}
	batch := index.NewBatch()
	for _, d := range docs {
		li.docs[d.ID] = d
		if err := batch.Index(d.ID, indexedDoc{Name: d.Name, Content: d.Content}); err != nil {
			return nil, fmt.Errorf("index %s: %w", d.Path, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index batch: %w", err)
	}
	return li, nil
}

// search ranks documents by text relevance to query, best first.
func (li *localIndex) search(query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []string{}, nil
	}
	li.mu.RLock()
	defer li.mu.RUnlock()
	if len(li.docs) == 0 {
		return []string{}, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	res, err := li.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := li.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, snippet(doc.Content))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (li *localIndex) close() {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.index != nil {
		_ = li.index.Close()
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxSnippet {
		return s
	}
	// drop a rune split by the byte cut
	return strings.ToValidUTF8(s[:maxSnippet], "")
}
