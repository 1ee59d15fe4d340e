// Package schema defines versioned audit rule sets: which criteria each
// report section must satisfy, which of them are critical, and the closed
// enumerations (with explicit alias maps) that criteria match against.
// Schemas are immutable once loaded; the gate treats them as read-only.
package schema

import (
	"errors"
	"fmt"
)

// RuleKind selects how a criterion is evaluated.
type RuleKind string

const (
	// RulePresence checks a named extracted sub-field is non-empty and,
	// unless the criterion is evidence-exempt, backed by a verbatim quote.
	RulePresence RuleKind = "presence"
	// RuleEnumeration checks every item of a closed enumeration is
	// addressed in the section text. Tracking is per item, not per criterion.
	RuleEnumeration RuleKind = "enumeration"
	// RuleCrossref pairs this section's extracted items one-to-one with
	// another section's items. Each unmatched pair fails individually.
	RuleCrossref RuleKind = "crossref"
)

// EvidencePolicy is the declarative evidence predicate on a criterion.
// Schema authors set this per criterion; the evaluator has no per-field
// conditionals.
type EvidencePolicy string

const (
	RequiresEvidence EvidencePolicy = "requires_evidence"
	EvidenceExempt   EvidencePolicy = "evidence_exempt"
)

// EnumItem is one member of a closed enumeration. Only the listed aliases
// count as a mention; there is no fuzzy or synonym matching.
type EnumItem struct {
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// Criterion is a single checkable requirement bound to one section.
type Criterion struct {
	ID          string         `yaml:"id" json:"id"`
	Section     string         `yaml:"section" json:"section"`
	Description string         `yaml:"description" json:"description"`
	Critical    bool           `yaml:"critical" json:"critical"`
	Rule        RuleKind       `yaml:"rule" json:"rule"`
	Evidence    EvidencePolicy `yaml:"evidence" json:"evidence"`

	// Field names the extracted sub-field checked by presence rules, and
	// the claim context attached to enumeration misses.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	// Items is the closed enumeration for enumeration rules.
	Items []EnumItem `yaml:"items,omitempty" json:"items,omitempty"`
	// RefSection and RefField identify the pairing target for crossref rules.
	RefSection string `yaml:"ref_section,omitempty" json:"ref_section,omitempty"`
	RefField   string `yaml:"ref_field,omitempty" json:"ref_field,omitempty"`
}

// Schema is a complete, versioned rule set for one document type.
type Schema struct {
	DocType  string   `yaml:"doc_type" json:"doc_type"`
	Version  int      `yaml:"version" json:"version"`
	Sections []string `yaml:"sections" json:"sections"`

	// CriticalSections drive the x/N executive summary; a section is
	// critical iff it carries at least one critical criterion.
	CriticalSections []string `yaml:"critical_sections" json:"critical_sections"`

	// CompletionPhrases are the only phrases that let a status field claim
	// completion ("Done", "Closed"). Anything else is treated as in-progress;
	// the consistency checker never upgrades a status.
	CompletionPhrases []string `yaml:"completion_phrases" json:"completion_phrases"`

	// StatusFields lists extracted sub-field names that carry action status
	// and are therefore subject to the no-escalation rule.
	StatusFields []string `yaml:"status_fields" json:"status_fields"`

	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

// Errors returned by the registry. Both abort before any evaluation.
var (
	ErrSchemaNotFound        = errors.New("schema not found")
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")
)

// Validate checks structural integrity: unique criterion IDs, known
// sections, and rule-specific required fields.
func (s *Schema) Validate() error {
	if s.DocType == "" {
		return errors.New("schema: doc_type is required")
	}
	if s.Version <= 0 {
		return fmt.Errorf("schema %s: version must be positive, got %d", s.DocType, s.Version)
	}
	known := make(map[string]bool, len(s.Sections))
	for _, name := range s.Sections {
		known[name] = true
	}
	seen := make(map[string]bool, len(s.Criteria))
	for _, c := range s.Criteria {
		if c.ID == "" {
			return fmt.Errorf("schema %s: criterion with empty id", s.DocType)
		}
		if seen[c.ID] {
			return fmt.Errorf("schema %s: duplicate criterion id %q", s.DocType, c.ID)
		}
		seen[c.ID] = true
		if !known[c.Section] {
			return fmt.Errorf("schema %s: criterion %s references unknown section %q", s.DocType, c.ID, c.Section)
		}
		switch c.Rule {
		case RulePresence:
			if c.Field == "" {
				return fmt.Errorf("schema %s: presence criterion %s needs a field", s.DocType, c.ID)
			}
		case RuleEnumeration:
			if len(c.Items) == 0 {
				return fmt.Errorf("schema %s: enumeration criterion %s has no items", s.DocType, c.ID)
			}
		case RuleCrossref:
			if c.RefSection == "" {
				return fmt.Errorf("schema %s: crossref criterion %s needs ref_section", s.DocType, c.ID)
			}
			if !known[c.RefSection] {
				return fmt.Errorf("schema %s: crossref criterion %s references unknown section %q", s.DocType, c.ID, c.RefSection)
			}
		default:
			return fmt.Errorf("schema %s: criterion %s has unknown rule %q", s.DocType, c.ID, c.Rule)
		}
		switch c.Evidence {
		case RequiresEvidence, EvidenceExempt:
		default:
			return fmt.Errorf("schema %s: criterion %s has unknown evidence policy %q", s.DocType, c.ID, c.Evidence)
		}
	}
	return nil
}

// SectionCriteria returns the criteria bound to a section, in schema order.
func (s *Schema) SectionCriteria(section string) []Criterion {
	var out []Criterion
	for _, c := range s.Criteria {
		if c.Section == section {
			out = append(out, c)
		}
	}
	return out
}

// IsCriticalSection reports whether section is in CriticalSections.
func (s *Schema) IsCriticalSection(section string) bool {
	for _, name := range s.CriticalSections {
		if name == section {
			return true
		}
	}
	return false
}
