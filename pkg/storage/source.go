package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	"github.com/juju/errors"
	"seqindex/pkg/common"

	_ "modernc.org/sqlite"
)

// Source yields labelled records for bulk loading. fn returning an error
// stops the iteration and that error is returned.
type Source interface {
	Each(ctx context.Context, fn func(label string, rec common.Record) error) error
}

// SliceSource serves records from memory.
type SliceSource []common.Record

func (s SliceSource) Each(ctx context.Context, fn func(label string, rec common.Record) error) error {
	for _, rec := range s {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		if err := fn(rec.Label, rec); err != nil {
			return err
		}
	}
	return nil
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource keeps records in one SQLite table with columns
// (id, label, sequence). Rows are served in insertion order.
type SQLiteSource struct {
	db    *sql.DB
	table string
	mu    sync.Mutex
}

func OpenSQLite(path, table string) (*SQLiteSource, error) {
	if !tableName.MatchString(table) {
		return nil, errors.NotValidf("table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Annotatef(err, "open sqlite %s", path)
	}

	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		sequence TEXT NOT NULL
	);`, table)
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "init table %s", table)
	}
	return &SQLiteSource{db: db, table: table}, nil
}

// Put appends records in one transaction.
func (s *SQLiteSource) Put(ctx context.Context, records ...common.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (label, sequence) VALUES (?, ?)", s.table))
	if err != nil {
		tx.Rollback()
		return errors.Trace(err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Label, rec.Sequence); err != nil {
			tx.Rollback()
			return errors.Annotatef(err, "insert %s", rec.Label)
		}
	}
	return errors.Trace(tx.Commit())
}

func (s *SQLiteSource) Each(ctx context.Context, fn func(label string, rec common.Record) error) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT label, sequence FROM %s ORDER BY id ASC", s.table))
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec common.Record
		if err := rows.Scan(&rec.Label, &rec.Sequence); err != nil {
			return errors.Trace(err)
		}
		if err := fn(rec.Label, rec); err != nil {
			return err
		}
	}
	return errors.Trace(rows.Err())
}

func (s *SQLiteSource) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	return n, errors.Trace(err)
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
