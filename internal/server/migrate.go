package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// DefaultMigrationsDir is the migrations source relative to the working directory.
const DefaultMigrationsDir = "file://migrations"

// DefaultKnowledgeMigrationsDir holds the pgvector index schema. It is
// versioned in its own table so the records schema never depends on pgvector.
const DefaultKnowledgeMigrationsDir = "file://migrations/knowledge"

const knowledgeMigrationsTable = "knowledge_schema_migrations"

// ErrPgvectorUnavailable means the server has no vector extension to install.
var ErrPgvectorUnavailable = errors.New("pgvector extension is not available on this server")

// Migrate applies database migrations from dir. steps of 0 means all.
// Having nothing to apply is not an error.
func Migrate(dir string, dsn string, direction string, steps int) error {
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	if dsn == "" {
		return errors.New("migrate: empty dsn")
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// MigrateKnowledge applies the knowledge index migrations. Before going up
// it checks that pgvector can be installed and returns ErrPgvectorUnavailable
// otherwise, leaving the migration state clean.
func MigrateKnowledge(ctx context.Context, dir, dsn, direction string, steps int) error {
	if dir == "" {
		dir = DefaultKnowledgeMigrationsDir
	}
	if dsn == "" {
		return errors.New("migrate: empty dsn")
	}
	if direction == "up" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("knowledge database: %w", err)
		}
		ok, err := pgvectorAvailable(ctx, db)
		_ = db.Close()
		if err != nil {
			return err
		}
		if !ok {
			return ErrPgvectorUnavailable
		}
	}
	tracked, err := withMigrationsTable(dsn, knowledgeMigrationsTable)
	if err != nil {
		return err
	}
	return Migrate(dir, tracked, direction, steps)
}

func pgvectorAvailable(ctx context.Context, db *sql.DB) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'vector')`).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check pgvector: %w", err)
	}
	return ok, nil
}

// withMigrationsTable points golang-migrate's postgres driver at table.
func withMigrationsTable(dsn, table string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("migrate: dsn must be a postgres:// url")
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
