// Package gate is the deterministic evaluation stage: it applies a rule
// schema to a structured report and produces a verdict tree with evidence
// citations. Evaluate is a pure function of (report, schema); it never
// touches storage, clocks, or other audits.
package gate

import (
	"fmt"

	"qforge/internal/evidence"
)

// Status is the tri-state outcome of one criterion (or enumeration item,
// or crossref pair).
type Status string

const (
	Pass     Status = "PASS"
	Fail     Status = "FAIL"
	NotFound Status = "NOT_FOUND"
)

// Decision is the overall gate outcome.
type Decision string

const (
	Approved Decision = "PASS"
	Rejected Decision = "REJECT"
)

// Verdict is the outcome for one checkable unit. Enumeration criteria
// produce one verdict per item; crossref criteria one per pairing.
type Verdict struct {
	ID          string             `json:"id"` // criterion id, or "crit:item" for sub-units
	CriterionID string             `json:"criterion_id"`
	Item        string             `json:"item,omitempty"`
	Section     string             `json:"section"`
	Description string             `json:"description"`
	Critical    bool               `json:"critical"`
	Status      Status             `json:"status"`
	Citation    *evidence.Citation `json:"citation,omitempty"`
	Detail      string             `json:"detail,omitempty"`
}

// SectionSummary is the recomputed x/N for one section.
type SectionSummary struct {
	Section  string `json:"section"`
	Passed   int    `json:"passed"`
	Total    int    `json:"total"`
	Critical bool   `json:"critical"`
	// Declared mirrors the report's own x/N claim when present; the
	// consistency checker compares, never corrects.
	Declared *int `json:"declared,omitempty"`
}

func (s SectionSummary) String() string {
	return fmt.Sprintf("%s %d/%d", s.Section, s.Passed, s.Total)
}

// AuditResult is the ordered verdict tree plus derived summaries and the
// overall decision. It is mutable only until Seal; the consistency checker
// seals it after a clean pass.
type AuditResult struct {
	ReportName    string           `json:"report_name"`
	DocType       string           `json:"doc_type"`
	SchemaVersion int              `json:"schema_version"`
	Fingerprint   string           `json:"fingerprint"`
	Verdicts      []Verdict        `json:"verdicts"`
	Summaries     []SectionSummary `json:"summaries"`
	Decision      Decision         `json:"decision"`

	sealed bool
}

// Verdict returns the verdict with the given id, or nil.
func (r *AuditResult) Verdict(id string) *Verdict {
	for i := range r.Verdicts {
		if r.Verdicts[i].ID == id {
			return &r.Verdicts[i]
		}
	}
	return nil
}

// Summary returns the summary for a section, or nil.
func (r *AuditResult) Summary(section string) *SectionSummary {
	for i := range r.Summaries {
		if r.Summaries[i].Section == section {
			return &r.Summaries[i]
		}
	}
	return nil
}

// FailingCritical returns every critical verdict that is not PASS, in
// schema order. Rejection reports enumerate these; a bare boolean is
// never surfaced.
func (r *AuditResult) FailingCritical() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Critical && v.Status != Pass {
			out = append(out, v)
		}
	}
	return out
}

// Seal freezes the result. Verdict mutation after sealing is a
// programming error surfaced via ErrSealed.
func (r *AuditResult) Seal() { r.sealed = true }

// Sealed reports whether the result is frozen.
func (r *AuditResult) Sealed() bool { return r.sealed }

// ErrSealed is returned by mutators invoked on a sealed result.
var ErrSealed = fmt.Errorf("audit result is sealed")

// SetStatus mutates a verdict's status. It refuses to run on a sealed
// result and refuses any escalation toward PASS: once a verdict is FAIL
// or NOT_FOUND, only re-evaluation from raw input can change that.
func (r *AuditResult) SetStatus(id string, status Status) error {
	if r.sealed {
		return ErrSealed
	}
	v := r.Verdict(id)
	if v == nil {
		return fmt.Errorf("unknown verdict %q", id)
	}
	if status == Pass && v.Status != Pass {
		return fmt.Errorf("verdict %s: escalation %s→PASS forbidden", id, v.Status)
	}
	v.Status = status
	return nil
}
