package gate

import (
	"fmt"
	"strings"

	"qforge/internal/evidence"
	"qforge/internal/report"
	"qforge/internal/schema"
)

// Evaluate applies the rule schema to the report and returns the verdict
// tree. It is deterministic: the same (report, schema) pair always yields
// an identical AuditResult. The report is never mutated.
func Evaluate(rep *report.Report, sch *schema.Schema) (*AuditResult, error) {
	if rep.DocType != sch.DocType {
		return nil, fmt.Errorf("report doc type %q vs schema %q: %w",
			rep.DocType, sch.DocType, schema.ErrSchemaNotFound)
	}
	if rep.SchemaVersion != 0 && rep.SchemaVersion != sch.Version {
		return nil, fmt.Errorf("report pinned to v%d, schema is v%d: %w",
			rep.SchemaVersion, sch.Version, schema.ErrSchemaVersionMismatch)
	}

	res := &AuditResult{
		ReportName:    rep.Name,
		DocType:       sch.DocType,
		SchemaVersion: sch.Version,
		Fingerprint:   rep.Fingerprint(),
	}

	for _, crit := range sch.Criteria {
		sec := rep.Section(crit.Section)
		switch crit.Rule {
		case schema.RuleEnumeration:
			res.Verdicts = append(res.Verdicts, evalEnumeration(crit, sec)...)
		case schema.RulePresence:
			res.Verdicts = append(res.Verdicts, evalPresence(crit, sec))
		case schema.RuleCrossref:
			res.Verdicts = append(res.Verdicts, evalCrossref(crit, sec, rep.Section(crit.RefSection))...)
		}
	}

	enforceEvidenceRequirement(res.Verdicts, sch)
	res.Summaries = summarize(res.Verdicts, rep, sch)
	res.Decision = decide(res.Verdicts)
	return res, nil
}

// evalEnumeration checks every enumerated item for a verbatim alias
// mention in the section text. Tracking is per item: a missing location
// fails that location, not the whole criterion.
func evalEnumeration(crit schema.Criterion, sec *report.Section) []Verdict {
	verdicts := make([]Verdict, 0, len(crit.Items))
	// Spans already claimed by an earlier item; a span claimed twice is
	// ambiguous and resolves to NOT_FOUND for both claimants.
	claimed := map[int]int{} // span start → verdict index

	for _, item := range crit.Items {
		v := Verdict{
			ID:          crit.ID + ":" + item.Name,
			CriterionID: crit.ID,
			Item:        item.Name,
			Section:     crit.Section,
			Description: crit.Description + ": " + item.Name,
			Critical:    crit.Critical,
		}
		if sec == nil || strings.TrimSpace(sec.Text) == "" {
			v.Status = NotFound
			v.Detail = "section empty"
			verdicts = append(verdicts, v)
			continue
		}

		var cite *evidence.Citation
		matchStart := -1
		for _, alias := range item.Aliases {
			if c, ok := evidence.Locate(crit.Section, sec.Text, alias); ok {
				matchStart = c.Start
				line := evidence.ExpandToLine(sec.Text, c)
				cite = &line
				break
			}
		}

		if cite == nil {
			v.Status = NotFound
			v.Detail = "no verbatim mention of " + item.Name
			attachClaimContext(&v, crit, sec)
			verdicts = append(verdicts, v)
			continue
		}

		if prev, dup := claimed[matchStart]; dup {
			// Same span supports two different items; refuse to guess.
			verdicts[prev].Status = NotFound
			verdicts[prev].Citation = nil
			verdicts[prev].Detail = "ambiguous evidence shared with " + item.Name
			v.Status = NotFound
			v.Detail = "ambiguous evidence shared with " + verdicts[prev].Item
			verdicts = append(verdicts, v)
			continue
		}
		claimed[matchStart] = len(verdicts)
		v.Status = Pass
		v.Citation = cite
		verdicts = append(verdicts, v)
	}
	return verdicts
}

// attachClaimContext cites what the section actually claims so rejection
// reports show the reviewer the text that fell short. The context citation
// never upgrades the verdict.
func attachClaimContext(v *Verdict, crit schema.Criterion, sec *report.Section) {
	if crit.Field != "" {
		if claim := sec.Fields[crit.Field]; claim != "" {
			if c, ok := evidence.Locate(crit.Section, sec.Text, claim); ok {
				v.Citation = &c
				return
			}
		}
	}
	if snip := evidence.Snippet(sec.Text, 160, nil); snip != evidence.NotFound {
		if c, ok := evidence.Locate(crit.Section, sec.Text, snip); ok {
			v.Citation = &c
		}
	}
}

// evalPresence checks the extracted sub-field is non-empty and, when the
// criterion requires evidence, that the value has a verbatim span in the
// section text. Non-empty text without a locatable quote is NOT_FOUND:
// text alone is not evidence.
func evalPresence(crit schema.Criterion, sec *report.Section) Verdict {
	v := Verdict{
		ID:          crit.ID,
		CriterionID: crit.ID,
		Section:     crit.Section,
		Description: crit.Description,
		Critical:    crit.Critical,
	}
	if sec == nil {
		v.Status = NotFound
		v.Detail = "section missing"
		return v
	}
	value := strings.TrimSpace(sec.Fields[crit.Field])
	if value == "" {
		v.Status = NotFound
		v.Detail = "field " + crit.Field + " empty"
		return v
	}
	if crit.Evidence == schema.EvidenceExempt {
		v.Status = Pass
		v.Detail = crit.Field + ": " + value
		return v
	}
	spans := evidence.LocateAll(crit.Section, sec.Text, value)
	switch len(spans) {
	case 0:
		v.Status = NotFound
		v.Detail = fmt.Sprintf("field %s = %q has no verbatim span in %s", crit.Field, value, crit.Section)
	default:
		line := evidence.ExpandToLine(sec.Text, spans[0])
		v.Status = Pass
		v.Citation = &line
	}
	return v
}

// evalCrossref pairs this section's items one-to-one with the referenced
// section's items, in order. Each unmatched side fails its own pairing;
// matched pairs pass individually.
func evalCrossref(crit schema.Criterion, sec, ref *report.Section) []Verdict {
	var items, refItems []string
	if sec != nil {
		items = sec.Items[crit.Field]
	}
	if ref != nil {
		refItems = ref.Items[crit.RefField]
	}

	base := Verdict{
		CriterionID: crit.ID,
		Section:     crit.Section,
		Critical:    crit.Critical,
	}

	if len(items) == 0 && len(refItems) == 0 {
		v := base
		v.ID = crit.ID
		v.Description = crit.Description
		v.Status = NotFound
		v.Detail = fmt.Sprintf("no %s in %s and no %s in %s extracted",
			crit.Field, crit.Section, crit.RefField, crit.RefSection)
		return []Verdict{v}
	}

	n := len(items)
	if len(refItems) > n {
		n = len(refItems)
	}
	verdicts := make([]Verdict, 0, n)
	for i := 0; i < n; i++ {
		v := base
		v.ID = fmt.Sprintf("%s:%d", crit.ID, i+1)
		v.Item = fmt.Sprintf("pair %d", i+1)
		switch {
		case i >= len(refItems):
			v.Status = Fail
			v.Description = fmt.Sprintf("%s %q has no corresponding %s in %s",
				crit.Field, items[i], crit.RefField, crit.RefSection)
		case i >= len(items):
			v.Status = Fail
			v.Description = fmt.Sprintf("%s %q in %s has no corresponding %s",
				crit.RefField, refItems[i], crit.RefSection, crit.Field)
		default:
			v.Status = Pass
			v.Description = fmt.Sprintf("%s %q addressed by %s %q", crit.RefField, refItems[i], crit.Field, items[i])
		}
		verdicts = append(verdicts, v)
	}
	return verdicts
}

// enforceEvidenceRequirement downgrades PASS/FAIL verdicts that lack a
// citation on evidence-requiring criteria. This runs last so no rule
// implementation can accidentally bypass the invariant.
func enforceEvidenceRequirement(verdicts []Verdict, sch *schema.Schema) {
	policies := make(map[string]schema.EvidencePolicy, len(sch.Criteria))
	for _, c := range sch.Criteria {
		policies[c.ID] = c.Evidence
	}
	for i := range verdicts {
		v := &verdicts[i]
		if v.Status == NotFound || policies[v.CriterionID] == schema.EvidenceExempt {
			continue
		}
		if v.Citation == nil || strings.TrimSpace(v.Citation.Quote) == "" {
			v.Status = NotFound
			if v.Detail == "" {
				v.Detail = "verdict without citation downgraded"
			}
		}
	}
}

func summarize(verdicts []Verdict, rep *report.Report, sch *schema.Schema) []SectionSummary {
	perSection := map[string]*SectionSummary{}
	var order []string
	for _, v := range verdicts {
		s, ok := perSection[v.Section]
		if !ok {
			s = &SectionSummary{Section: v.Section, Critical: sch.IsCriticalSection(v.Section)}
			perSection[v.Section] = s
			order = append(order, v.Section)
		}
		s.Total++
		if v.Status == Pass {
			s.Passed++
		}
	}
	out := make([]SectionSummary, 0, len(order))
	for _, name := range order {
		s := perSection[name]
		if sec := rep.Section(name); sec != nil {
			s.Declared = sec.DeclaredPassCount
		}
		out = append(out, *s)
	}
	return out
}

func decide(verdicts []Verdict) Decision {
	for _, v := range verdicts {
		if v.Critical && v.Status != Pass {
			return Rejected
		}
	}
	return Approved
}
