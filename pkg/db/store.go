// Package db persists projects, their files, jobs and pipeline artifacts in a
// relational store. SQLite (modernc) and Postgres (pgx) are supported through
// database/sql.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yumyai/varenrich/pkg/model"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

var (
	ErrNotFound = errors.New("not found")
	// ErrJobRunning is returned when a project already has a running job.
	ErrJobRunning = errors.New("a job is already running for this project")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and applies the schema.
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "":
		driver, sqlDriver = DriverSQLite, "sqlite"
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY between pooled connections
		conn.SetMaxOpenConns(1)
	}

	s := &Store{db: conn, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS background_sets (
			name TEXT PRIMARY KEY,
			file TEXT NOT NULL,
			population TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			state TEXT NOT NULL,
			config TEXT NOT NULL,
			artifacts TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS variant_files (
			id ` + serial + `,
			project_id TEXT NOT NULL REFERENCES projects(id),
			sample_name TEXT NOT NULL,
			path TEXT NOT NULL,
			population TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_project ON jobs(project_id)`,
		// at most one running job per project
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_one_running ON jobs(project_id) WHERE state = 'running'`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// rebind turns "?" placeholders into "$n" for Postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func now() int64 { return time.Now().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ----------------------------------------------------------------------------
// Background sets

// PutBackgroundSet registers (or replaces) a reference cohort.
func (s *Store) PutBackgroundSet(ctx context.Context, b model.BackgroundSet) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO background_sets (name, file, population) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET file = excluded.file, population = excluded.population`),
		b.Name, b.File, b.Population)
	if err != nil {
		return fmt.Errorf("put background set %s: %w", b.Name, err)
	}
	return nil
}

func (s *Store) GetBackgroundSet(ctx context.Context, name string) (*model.BackgroundSet, error) {
	var b model.BackgroundSet
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT name, file, population FROM background_sets WHERE name = ?`), name).
		Scan(&b.Name, &b.File, &b.Population)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("background set %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBackgroundSets(ctx context.Context) ([]model.BackgroundSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, file, population FROM background_sets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.BackgroundSet
	for rows.Next() {
		var b model.BackgroundSet
		if err := rows.Scan(&b.Name, &b.File, &b.Population); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
