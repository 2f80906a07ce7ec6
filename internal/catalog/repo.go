package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/record"
)

// Row represents a row in the records table.
type Row struct {
	Path        string
	Date        *time.Time
	Tags        []string
	Fingerprint string
	UpdatedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
}

// FromRecord builds a row for rec with the given file fingerprint.
func FromRecord(rec *record.Record, fingerprint string) Row {
	return Row{
		Path:        rec.Path,
		Date:        rec.Date,
		Tags:        rec.Tags(),
		Fingerprint: fingerprint,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Record converts the row back into a record.
func (r Row) Record() *record.Record {
	rec := record.New(r.Path, r.Tags...)
	rec.SetDate(r.Date)
	return rec
}

// Upsert inserts or replaces a record row and its FTS entry within a transaction.
func (db *DB) Upsert(r Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.Tags == nil {
		r.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(r.Tags)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO records (path, date, tags, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			date        = excluded.date,
			tags        = excluded.tags,
			fingerprint = excluded.fingerprint,
			updated_at  = excluded.updated_at
	`, r.Path, formatDate(r.Date), string(tagsJSON), r.Fingerprint, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, r.Path, r.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a record row and its FTS entry.
func (db *DB) Delete(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM records WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete record: %w", err)
	}
	return tx.Commit()
}

const selectRow = `SELECT path, date, tags, fingerprint, updated_at FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var (
		r    Row
		date sql.NullString
		tags string
	)
	if err := s.Scan(&r.Path, &date, &tags, &r.Fingerprint, &r.UpdatedAt); err != nil {
		return Row{}, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return Row{}, fmt.Errorf("catalog: decode tags of %s: %w", r.Path, err)
	}
	if date.Valid {
		if t, err := dates.Parse(date.String); err == nil {
			r.Date = &t
		}
	}
	return r, nil
}

// Get returns the row for path, or an error wrapping apperr.ErrNotFound.
func (db *DB) Get(path string) (*Row, error) {
	r, err := scanRow(db.conn.QueryRow(selectRow+` WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get: %w", err)
	}
	return &r, nil
}

// List returns a page of rows ordered by path, optionally limited to rows
// carrying tag exactly, plus the total number of matching rows.
func (db *DB) List(limit, offset int, tag string) ([]Row, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where, args := "", []any{}
	if tag != "" {
		where = ` WHERE EXISTS (SELECT 1 FROM json_each(records.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	rows, err := db.conn.Query(selectRow+where+` ORDER BY path LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()
	out, err := collect(rows)
	return out, total, err
}

// Records returns every row ordered by path.
func (db *DB) Records() ([]Row, error) {
	rows, err := db.conn.Query(selectRow + ` ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("catalog: records: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Row, error) {
	out := []Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Fingerprints maps every cataloged path to its stored fingerprint.
func (db *DB) Fingerprints() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, fingerprint FROM records`)
	if err != nil {
		return nil, fmt.Errorf("catalog: fingerprints: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, fp string
		if err := rows.Scan(&p, &fp); err != nil {
			return nil, err
		}
		out[p] = fp
	}
	return out, rows.Err()
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dates.Format(*t)
}
