package gate

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"qforge/internal/report"
	"qforge/internal/schema"
)

func load8D(t *testing.T) *schema.Schema {
	t.Helper()
	reg, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	sch, err := reg.Load("8d", 1)
	if err != nil {
		t.Fatalf("Load 8d v1: %v", err)
	}
	return sch
}

// compliantReport covers every critical criterion of the built-in 8D rule
// set with verbatim, locatable evidence.
func compliantReport() *report.Report {
	return &report.Report{
		Name:    "CAR-2026-0142",
		DocType: "8d",
		Sections: []report.Section{
			{Name: "D1", Text: "Team: quality, process, line supervisor."},
			{Name: "D2", Text: "Problem: seal leak on valve body, 14 units returned."},
			{
				Name: "D3",
				Text: "Containment: WIP screened 100%; in-transit shipments held at hub;\n" +
					"customer site inventory sorted; customer stock purged from racks;\n" +
					"internal stock quarantined pending rework.",
				Fields: map[string]string{"containment": "all five locations screened"},
			},
			{
				Name: "D4",
				Text: "Occurrence: seal misalignment from worn fixture.\n" +
					"Escape point: outgoing leak test threshold set too high.\n" +
					"Detection: gauge R&R failed on the leak tester.",
				Fields: map[string]string{"root_cause": "seal misalignment from worn fixture"},
				Items:  map[string][]string{"causes": {"worn fixture", "leak test threshold"}},
			},
			{
				Name: "D5",
				Text: "Actions: redesign seal fixture; update inspection SOP.\n" +
					"Owner: J. Chen. Deadline: 2026-10-15.",
				Fields: map[string]string{
					"actions":  "redesign seal fixture",
					"owner":    "J. Chen",
					"deadline": "2026-10-15",
				},
				Items: map[string][]string{"actions": {"redesign seal fixture", "update inspection SOP"}},
			},
			{
				Name:   "D6",
				Text:   "Validation: 3 production lots (1,500 units) ran zero leaks after the change.",
				Fields: map[string]string{"validation_data": "3 production lots (1,500 units)"},
			},
			{
				Name: "D7",
				Text: "SOP-114 revised to Rev C; all line operators trained on 2026-09-20.",
				Fields: map[string]string{
					"doc_revision": "SOP-114 revised to Rev C",
					"training":     "operators trained on 2026-09-20",
				},
			},
			{
				Name:   "D8",
				Text:   "Team recognized at the quarterly quality review.",
				Fields: map[string]string{"summary": "Team recognized at the quarterly quality review."},
			},
		},
	}
}

// BDD: Given a fully compliant report, When evaluated, Then the decision
// is PASS and every critical PASS verdict carries a verbatim citation.
func TestEvaluate_CompliantReportApproved(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Decision != Approved {
		t.Fatalf("decision: got %q want %q; failing: %+v", res.Decision, Approved, res.FailingCritical())
	}
	for _, v := range res.Verdicts {
		if !v.Critical || v.Status != Pass {
			continue
		}
		if v.Citation == nil {
			// evidence_exempt criteria pass without a quote
			continue
		}
		sec := rep.Section(v.Section)
		if !strings.Contains(sec.Text, v.Citation.Quote) {
			t.Errorf("%s: citation %q is not a verbatim substring of %s", v.ID, v.Citation.Quote, v.Section)
		}
	}
	if s := res.Summary("D3"); s == nil || s.Passed != 5 || s.Total != 5 {
		t.Errorf("D3 summary: got %v want 5/5", s)
	}
}

// BDD: Given containment covering four of five locations, When evaluated,
// Then Internal Stock alone is NOT_FOUND, the D3 summary is 4/5, and the
// report is rejected with that verdict enumerated.
func TestEvaluate_PartialContainmentRejected(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	declared := 5
	d3 := rep.Section("D3")
	d3.Text = "Containment: WIP screened 100%; in-transit shipments held at hub;\n" +
		"customer site inventory sorted; customer stock purged from racks."
	d3.DeclaredPassCount = &declared

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Decision != Rejected {
		t.Fatalf("decision: got %q want %q", res.Decision, Rejected)
	}
	v := res.Verdict("d3.containment:Internal Stock")
	if v == nil {
		t.Fatal("no verdict for Internal Stock")
	}
	if v.Status != NotFound {
		t.Errorf("Internal Stock: got %q want %q", v.Status, NotFound)
	}
	for _, name := range []string{"WIP", "In-transit", "Customer Site", "Customer Stock"} {
		if got := res.Verdict("d3.containment:" + name); got == nil || got.Status != Pass {
			t.Errorf("%s: got %v want PASS", name, got)
		}
	}
	s := res.Summary("D3")
	if s == nil || s.Passed != 4 || s.Total != 5 {
		t.Fatalf("D3 summary: got %v want 4/5", s)
	}
	if s.Declared == nil || *s.Declared != 5 {
		t.Errorf("declared: got %v want 5", s.Declared)
	}
	failing := res.FailingCritical()
	if len(failing) != 1 || failing[0].ID != "d3.containment:Internal Stock" {
		t.Errorf("failing critical: got %+v", failing)
	}
}

// BDD: Given a D4 that only says "operator error", When evaluated, Then
// all three analysis dimensions are NOT_FOUND and each carries the
// section's own claim as context.
func TestEvaluate_ShallowRootCauseAllDimensionsNotFound(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	d4 := rep.Section("D4")
	d4.Text = "Root cause: operator error."
	d4.Fields = map[string]string{"root_cause": "operator error"}
	d4.Items = map[string][]string{"causes": {"operator error"}}
	rep.Section("D5").Items = map[string][]string{"actions": {"retrain operator"}}

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, name := range []string{"Occurrence", "Escalation", "Detection"} {
		v := res.Verdict("d4.analysis:" + name)
		if v == nil {
			t.Fatalf("no verdict for %s", name)
		}
		if v.Status != NotFound {
			t.Errorf("%s: got %q want %q", name, v.Status, NotFound)
		}
		if v.Citation == nil || v.Citation.Quote != "operator error" {
			t.Errorf("%s: context citation got %v want quote %q", name, v.Citation, "operator error")
		}
	}
	if res.Decision != Rejected {
		t.Errorf("decision: got %q want %q", res.Decision, Rejected)
	}
}

// BDD: Given the same report and schema, When evaluated twice, Then both
// results are identical field for field.
func TestEvaluate_Deterministic(t *testing.T) {
	sch := load8D(t)

	a, err := Evaluate(compliantReport(), sch)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	b, err := Evaluate(compliantReport(), sch)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if diff := cmp.Diff(a, b, cmp.AllowUnexported(AuditResult{})); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
}

// BDD: Given a non-empty field whose value has no verbatim span in the
// section, When evaluated, Then the verdict is NOT_FOUND, not PASS.
func TestEvaluate_TextAloneIsNotEvidence(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	rep.Section("D5").Fields["owner"] = "R. Alvarez"

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	v := res.Verdict("d5.owner")
	if v == nil || v.Status != NotFound {
		t.Fatalf("d5.owner: got %v want NOT_FOUND", v)
	}
	if v.Citation != nil {
		t.Errorf("d5.owner: unlocatable value must not carry a citation, got %q", v.Citation.Quote)
	}
}

// BDD: Given two D4 causes and a single corrective action, When evaluated,
// Then the first pair passes and the surplus cause fails individually.
func TestEvaluate_CrossrefSurplusCauseFails(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	rep.Section("D5").Items = map[string][]string{"actions": {"redesign seal fixture"}}

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v := res.Verdict("d5.alignment:1"); v == nil || v.Status != Pass {
		t.Errorf("pair 1: got %v want PASS", v)
	}
	v := res.Verdict("d5.alignment:2")
	if v == nil || v.Status != Fail {
		t.Fatalf("pair 2: got %v want FAIL", v)
	}
	if !strings.Contains(v.Description, "leak test threshold") {
		t.Errorf("pair 2 description should name the unaddressed cause, got %q", v.Description)
	}
}

func TestEvaluate_CrossrefNothingExtracted(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	rep.Section("D4").Items = nil
	rep.Section("D5").Items = nil

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	v := res.Verdict("d5.alignment")
	if v == nil || v.Status != NotFound {
		t.Fatalf("d5.alignment: got %v want a single NOT_FOUND verdict", v)
	}
}

// BDD: Given two enumeration items matching at the same span, When
// evaluated, Then neither gets the credit.
func TestEvaluate_AmbiguousSpanRefused(t *testing.T) {
	sch := &schema.Schema{
		DocType:          "8d",
		Version:          1,
		Sections:         []string{"D3"},
		CriticalSections: []string{"D3"},
		Criteria: []schema.Criterion{{
			ID:       "d3.loc",
			Section:  "D3",
			Critical: true,
			Rule:     schema.RuleEnumeration,
			Evidence: schema.RequiresEvidence,
			Items: []schema.EnumItem{
				{Name: "Customer Stock", Aliases: []string{"warehouse"}},
				{Name: "Internal Stock", Aliases: []string{"warehouse"}},
			},
		}},
	}
	rep := &report.Report{
		Name:     "CAR-ambiguous",
		DocType:  "8d",
		Sections: []report.Section{{Name: "D3", Text: "All warehouse stock quarantined."}},
	}

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, id := range []string{"d3.loc:Customer Stock", "d3.loc:Internal Stock"} {
		v := res.Verdict(id)
		if v == nil || v.Status != NotFound {
			t.Errorf("%s: got %v want NOT_FOUND", id, v)
		}
	}
	if res.Decision != Rejected {
		t.Errorf("decision: got %q want %q", res.Decision, Rejected)
	}
}

func TestEvaluate_SchemaBindingErrors(t *testing.T) {
	sch := load8D(t)

	rep := compliantReport()
	rep.DocType = "a3"
	if _, err := Evaluate(rep, sch); !errors.Is(err, schema.ErrSchemaNotFound) {
		t.Errorf("doc type mismatch: got %v want ErrSchemaNotFound", err)
	}

	rep = compliantReport()
	rep.SchemaVersion = 2
	if _, err := Evaluate(rep, sch); !errors.Is(err, schema.ErrSchemaVersionMismatch) {
		t.Errorf("version mismatch: got %v want ErrSchemaVersionMismatch", err)
	}
}

// BDD: Given an empty D3 section, When evaluated, Then every item reports
// NOT_FOUND rather than one collapsed criterion verdict.
func TestEvaluate_EmptySectionPerItemNotFound(t *testing.T) {
	sch := load8D(t)
	rep := compliantReport()
	rep.Section("D3").Text = "   "

	res, err := Evaluate(rep, sch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	s := res.Summary("D3")
	if s == nil || s.Passed != 0 || s.Total != 5 {
		t.Fatalf("D3 summary: got %v want 0/5", s)
	}
}
