// Package consistency cross-checks a gate result against the report's
// own claims: declared section counts and action-status fields. It fails
// loudly on disagreement and never repairs either side. A clean pass
// seals the result.
package consistency

import (
	"fmt"
	"strings"

	"qforge/internal/evidence"
	"qforge/internal/gate"
	"qforge/internal/report"
	"qforge/internal/schema"
)

// Error names the section where the report's claim disagrees with the
// recomputed verdicts. It aborts the audit cycle; nothing is persisted.
type Error struct {
	Section string
	Field   string
	Reason  string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("consistency: section %s field %s: %s", e.Section, e.Field, e.Reason)
	}
	return fmt.Sprintf("consistency: section %s: %s", e.Section, e.Reason)
}

// Check recomputes every section's pass count and compares it against the
// count the report itself declares, then verifies no status field claims
// completion without a verbatim completion phrase in its section text.
// The first disagreement is returned as *Error; the result is untouched.
// A clean pass seals the result. Checking an already sealed result is a
// no-op.
func Check(res *gate.AuditResult, rep *report.Report, sch *schema.Schema) error {
	if res.Sealed() {
		return nil
	}

	for _, s := range res.Summaries {
		if s.Declared == nil {
			continue
		}
		if *s.Declared != s.Passed {
			return &Error{
				Section: s.Section,
				Reason:  fmt.Sprintf("declares %d/%d but %d of %d criteria passed", *s.Declared, s.Total, s.Passed, s.Total),
			}
		}
	}

	for _, sec := range rep.Sections {
		for _, field := range sch.StatusFields {
			value := strings.TrimSpace(sec.Fields[field])
			if value == "" {
				continue
			}
			phrase := completionClaim(value, sch.CompletionPhrases)
			if phrase == "" {
				continue
			}
			if _, ok := evidence.Locate(sec.Name, sec.Text, phrase); !ok {
				return &Error{
					Section: sec.Name,
					Field:   field,
					Reason:  fmt.Sprintf("status %q claims completion but %q has no verbatim span in the section", value, phrase),
				}
			}
		}
	}

	res.Seal()
	return nil
}

// completionClaim returns the completion phrase the status value invokes,
// or "" when the value does not claim completion. Matching is on the
// normalized form; anything not listed is treated as in-progress.
func completionClaim(value string, phrases []string) string {
	norm := evidence.Normalize(value)
	for _, p := range phrases {
		if strings.Contains(norm, evidence.Normalize(p)) {
			return p
		}
	}
	return ""
}
