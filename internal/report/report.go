// Package report holds the structured report model handed to the gate.
// Ingestion (docx, spreadsheets) lives outside the engine; the engine
// consumes a Report that is already split into named sections with raw
// text and extracted sub-fields, and treats it as read-only.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Section is one named block of the report (D1..D8 for 8D documents).
type Section struct {
	Name string `json:"name" yaml:"name"`
	// Text is the raw section text; evidence citations are substrings of it.
	Text string `json:"text" yaml:"text"`
	// Fields maps recognized sub-field names to extracted values, e.g.
	// owner, deadline, status. Multi-valued fields are "; "-joined by the
	// ingestion collaborator.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Items carries per-section extracted lists used by crossref rules
	// (e.g. D4 causes, D5 actions).
	Items map[string][]string `json:"items,omitempty" yaml:"items,omitempty"`
	// DeclaredPassCount is the x of an "x/N" summary the report itself
	// claims for this section, if any. nil means not declared. The
	// consistency checker compares it against the recomputed count and
	// never corrects it.
	DeclaredPassCount *int `json:"declared_pass_count,omitempty" yaml:"declared_pass_count,omitempty"`
}

// Report is an ordered sequence of named sections plus the schema binding
// the ingestion collaborator agreed to.
type Report struct {
	Name          string    `json:"name" yaml:"name"`
	DocType       string    `json:"doc_type" yaml:"doc_type"`
	SchemaVersion int       `json:"schema_version" yaml:"schema_version"`
	Sections      []Section `json:"sections" yaml:"sections"`
}

// Section returns the named section, or nil.
func (r *Report) Section(name string) *Section {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i]
		}
	}
	return nil
}

// Field returns a sub-field value from a section, or "".
func (r *Report) Field(section, field string) string {
	s := r.Section(section)
	if s == nil {
		return ""
	}
	return s.Fields[field]
}

var wsRun = regexp.MustCompile(`\s+`)

// Fingerprint is a stable identity for the report content: sha256 over
// the whitespace-collapsed section texts in section order. Reports that
// differ only in formatting share a fingerprint, so prior audit outcomes
// surface for resubmissions.
func (r *Report) Fingerprint() string {
	h := sha256.New()
	for _, s := range r.Sections {
		h.Write([]byte(s.Name))
		h.Write([]byte{0})
		h.Write([]byte(wsRun.ReplaceAllString(strings.TrimSpace(s.Text), " ")))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
