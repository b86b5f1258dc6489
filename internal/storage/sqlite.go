package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTable keeps regions in a local SQLite file, one JSON-encoded row per
// (region, seq) pair.
type SQLiteTable struct {
	db *sql.DB
}

func Open(path string) (*SQLiteTable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	return &SQLiteTable{db: db}, nil
}

func (s *SQLiteTable) Close() error {
	return s.db.Close()
}

func (s *SQLiteTable) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS region_rows (
	region TEXT NOT NULL,
	seq INTEGER NOT NULL,
	cells TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (region, seq)
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteTable) Get(ctx context.Context, region string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, cells
FROM region_rows
WHERE region = ?
ORDER BY seq
`, region)
	if err != nil {
		return nil, wrap("get", region, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var seq int
		var encoded string
		if err := rows.Scan(&seq, &encoded); err != nil {
			return nil, wrap("get", region, err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(encoded), &cells); err != nil {
			return nil, wrap("get", region, fmt.Errorf("row %d: %w", seq, err))
		}
		// Sparse updates leave gaps; keep row indexes stable.
		for len(out) < seq {
			out = append(out, []string{})
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("get", region, err)
	}
	return out, nil
}

func (s *SQLiteTable) Append(ctx context.Context, region string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("append", region, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var next int
	row := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq) + 1, 0)
FROM region_rows
WHERE region = ?
`, region)
	if err := row.Scan(&next); err != nil {
		return wrap("append", region, err)
	}

	if err := upsertRows(ctx, tx, region, next, rows); err != nil {
		return wrap("append", region, err)
	}
	return wrap("append", region, tx.Commit())
}

func (s *SQLiteTable) Update(ctx context.Context, region string, row int, rows [][]string) error {
	if row < 0 {
		return wrap("update", region, errors.New("negative row offset"))
	}
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("update", region, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := upsertRows(ctx, tx, region, row, rows); err != nil {
		return wrap("update", region, err)
	}
	return wrap("update", region, tx.Commit())
}

func (s *SQLiteTable) Clear(ctx context.Context, region string) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM region_rows
WHERE region = ?
`, region)
	return wrap("clear", region, err)
}

func upsertRows(ctx context.Context, tx *sql.Tx, region string, start int, rows [][]string) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO region_rows (region, seq, cells, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(region, seq) DO UPDATE SET
	cells = excluded.cells,
	updated_at = excluded.updated_at
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, cells := range rows {
		if cells == nil {
			cells = []string{}
		}
		encoded, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, region, start+i, string(encoded), now); err != nil {
			return err
		}
	}
	return nil
}
