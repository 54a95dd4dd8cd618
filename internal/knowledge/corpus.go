package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is one corpus file.
type Document struct {
	ID      string
	Name    string
	Path    string
	Content string
}

// Payload returns the JSON payload stored alongside the document vector.
func (d Document) Payload() Payload {
	return Payload{
		Name:    d.Name,
		Content: d.Content,
		Meta: map[string]any{
			"name":      d.Name,
			"file_name": filepath.Base(d.Path),
			"file_path": d.Path,
			"source":    "corpus",
		},
	}
}

// SupportedExtensions lists the corpus file types that are indexed.
var SupportedExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true, ".pdf": true}

// LoadCorpus reads every supported file under dir, sorted by path. Files
// that cannot be read or are empty are reported in skipped.
func LoadCorpus(dir string) (docs []Document, skipped []string, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("corpus dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("corpus dir %s is not a directory", dir)
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !SupportedExtensions[ext] {
			return nil
		}
		text, rerr := readText(path, ext)
		if rerr != nil || strings.TrimSpace(text) == "" {
			skipped = append(skipped, path)
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		docs = append(docs, Document{
			ID:      documentID(rel),
			Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:    filepath.ToSlash(rel),
			Content: text,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk corpus: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, skipped, nil
}

func readText(path, ext string) (string, error) {
	if ext == ".pdf" {
		return readPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// documentID is stable for a corpus-relative path.
func documentID(rel string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(rel)))
	return hex.EncodeToString(sum[:16])
}
