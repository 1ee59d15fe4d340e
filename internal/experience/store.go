// Package experience is the append-only log of completed audit cycles.
// Records are advisory context for future audits of similar reports; the
// query surface returns plain historical values with no path back into a
// live verdict.
package experience

import "errors"

// DefaultDBPath is the default relative path for the SQLite DB
// (per-workspace). Open() creates the parent dir (e.g. .qforge).
const DefaultDBPath = ".qforge/qforge.db"

// Record is one completed audit cycle. Appended exactly once, never
// mutated or deleted.
type Record struct {
	ID          int64  `json:"id"`
	Fingerprint string `json:"fingerprint"`
	ReportName  string `json:"report_name"`
	DocType     string `json:"doc_type"`
	Decision    string `json:"decision"` // gate decision: PASS or REJECT
	Outcome     string `json:"outcome"`  // terminal orchestrator outcome
	Summary     string `json:"summary"`  // per-section x/N digest
	Narrative   string `json:"narrative,omitempty"`
	CreatedAt   string `json:"created_at"` // RFC3339 UTC, set on append
}

// Terminal outcomes recorded per cycle.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "stage2_timeout"
	OutcomeExhausted = "logic_audit_exhausted"
)

// ErrImmutable is returned by any attempt to rewrite an existing record.
var ErrImmutable = errors.New("experience records are append-only")

// Store is the persistence facade for experience records. Appends must be
// atomic per record; concurrent appenders never interleave within one.
type Store interface {
	// Append writes one record and returns its id. rec.ID and
	// rec.CreatedAt are assigned by the store; a caller-set ID is ErrImmutable.
	Append(rec *Record) (int64, error)
	// Query returns all records for a fingerprint, most recent first.
	Query(fingerprint string) ([]*Record, error)
	// Recent returns up to limit records across all fingerprints, most
	// recent first. limit <= 0 means no cap.
	Recent(limit int) ([]*Record, error)
	Close() error
}
