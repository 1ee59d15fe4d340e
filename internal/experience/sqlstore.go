package experience

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS experience (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	report_name TEXT NOT NULL,
	doc_type    TEXT NOT NULL,
	decision    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	summary     TEXT NOT NULL,
	narrative   TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experience_fingerprint ON experience(fingerprint);
`

// SqlStore implements Store with SQLite.
type SqlStore struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and ensures the schema.
// Creates the parent directory (e.g. .qforge) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create experience schema: %w", err)
	}
	return &SqlStore{db: db}, nil
}

func (s *SqlStore) Append(rec *Record) (int64, error) {
	if rec.ID != 0 {
		return 0, ErrImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := nowUTC()
	res, err := s.db.Exec(
		`INSERT INTO experience(fingerprint, report_name, doc_type, decision, outcome, summary, narrative, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.ReportName, rec.DocType, rec.Decision, rec.Outcome, rec.Summary, rec.Narrative, created,
	)
	if err != nil {
		return 0, fmt.Errorf("append experience: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append experience id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = created
	return id, nil
}

func (s *SqlStore) Query(fingerprint string) ([]*Record, error) {
	rows, err := s.db.Query(
		`SELECT id, fingerprint, report_name, doc_type, decision, outcome, summary, narrative, created_at
		 FROM experience WHERE fingerprint = ? ORDER BY id DESC`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query experience: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SqlStore) Recent(limit int) ([]*Record, error) {
	q := `SELECT id, fingerprint, report_name, doc_type, decision, outcome, summary, narrative, created_at
	      FROM experience ORDER BY id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("recent experience: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SqlStore) Close() error { return s.db.Close() }

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var rec Record
		var narrative sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &rec.ReportName, &rec.DocType,
			&rec.Decision, &rec.Outcome, &rec.Summary, &narrative, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		if narrative.Valid {
			rec.Narrative = narrative.String
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experience: %w", err)
	}
	return out, nil
}
