package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// pgIndex is the remote vector index: a pgvector column queried by cosine distance.
type pgIndex struct {
	db *sql.DB
}

const searchSQL = `
SELECT payload, embedding <=> $1::vector AS distance
FROM knowledge_documents
ORDER BY embedding <=> $1::vector
LIMIT $2`

const insertSQL = `
INSERT INTO knowledge_documents (id, name, payload, embedding, created_at)
VALUES ($1,$2,$3,$4::vector,NOW())`

func (p *pgIndex) search(ctx context.Context, vector []float32, limit int) ([]string, error) {
	lit, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, searchSQL, lit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0, limit)
	for rows.Next() {
		var (
			payload  []byte
			distance float64
		)
		if err := rows.Scan(&payload, &distance); err != nil {
			return nil, err
		}
		pl, err := DecodePayload(payload)
		if err != nil || strings.TrimSpace(pl.Content) == "" {
			continue
		}
		out = append(out, snippet(pl.Content))
	}
	return out, rows.Err()
}

// replace swaps the whole index for docs in a single transaction.
func (p *pgIndex) replace(ctx context.Context, docs []Document, vectors [][]float32) (err error) {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents/vectors mismatch: %d != %d", len(docs), len(vectors))
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM knowledge_documents`); err != nil {
		return fmt.Errorf("clear knowledge documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, d := range docs {
		lit, lerr := encodeVectorLiteral(vectors[i])
		if lerr != nil {
			err = fmt.Errorf("document %s: %w", d.Path, lerr)
			return err
		}
		payload, merr := json.Marshal(d.Payload())
		if merr != nil {
			err = fmt.Errorf("marshal payload: %w", merr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, d.ID, d.Name, string(payload), lit); err != nil {
			return fmt.Errorf("insert %s: %w", d.Path, err)
		}
	}
	return nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
