package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// BDD: Given the embedded rule sets, When NewRegistry, Then the 8d schema loads at v1.
func TestNewRegistry_Loads8D(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s, err := r.Load("8d", 1)
	if err != nil {
		t.Fatalf("Load(8d, 1): %v", err)
	}
	if s.DocType != "8d" || s.Version != 1 {
		t.Errorf("schema identity: got %s v%d want 8d v1", s.DocType, s.Version)
	}
	if len(s.Sections) != 8 {
		t.Errorf("sections: got %d want 8", len(s.Sections))
	}
}

func TestLoad_UnknownDocType(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err = r.Load("5whys", 0)
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("Load(5whys): got %v want ErrSchemaNotFound", err)
	}
}

func TestLoad_VersionMismatch(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err = r.Load("8d", 99)
	if !errors.Is(err, ErrSchemaVersionMismatch) {
		t.Errorf("Load(8d, 99): got %v want ErrSchemaVersionMismatch", err)
	}
	// version 0 means "whatever is registered"
	if _, err := r.Load("8d", 0); err != nil {
		t.Errorf("Load(8d, 0): %v", err)
	}
}

// The D3 containment enumeration is closed: exactly five locations.
func Test8D_ContainmentEnumerationIsClosed(t *testing.T) {
	r, _ := NewRegistry()
	s, err := r.Load("8d", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var containment *Criterion
	for i := range s.Criteria {
		if s.Criteria[i].ID == "d3.containment" {
			containment = &s.Criteria[i]
		}
	}
	if containment == nil {
		t.Fatal("d3.containment criterion missing")
	}
	if got := len(containment.Items); got != 5 {
		t.Fatalf("containment items: got %d want 5", got)
	}
	want := []string{"WIP", "In-transit", "Customer Site", "Customer Stock", "Internal Stock"}
	for i, item := range containment.Items {
		if item.Name != want[i] {
			t.Errorf("item %d: got %q want %q", i, item.Name, want[i])
		}
	}
}

func TestValidate_RejectsBrokenSchemas(t *testing.T) {
	cases := []struct {
		name string
		s    Schema
	}{
		{"empty doc type", Schema{Version: 1}},
		{"zero version", Schema{DocType: "x"}},
		{"unknown section", Schema{DocType: "x", Version: 1, Sections: []string{"A"},
			Criteria: []Criterion{{ID: "c", Section: "B", Rule: RulePresence, Field: "f", Evidence: RequiresEvidence}}}},
		{"presence without field", Schema{DocType: "x", Version: 1, Sections: []string{"A"},
			Criteria: []Criterion{{ID: "c", Section: "A", Rule: RulePresence, Evidence: RequiresEvidence}}}},
		{"duplicate id", Schema{DocType: "x", Version: 1, Sections: []string{"A"},
			Criteria: []Criterion{
				{ID: "c", Section: "A", Rule: RulePresence, Field: "f", Evidence: RequiresEvidence},
				{ID: "c", Section: "A", Rule: RulePresence, Field: "g", Evidence: RequiresEvidence},
			}}},
		{"bad evidence policy", Schema{DocType: "x", Version: 1, Sections: []string{"A"},
			Criteria: []Criterion{{ID: "c", Section: "A", Rule: RulePresence, Field: "f", Evidence: "maybe"}}}},
	}
	for _, c := range cases {
		if err := c.s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestRegisterFile_ReplacesDocType(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	custom := `
doc_type: 8d
version: 2
sections: [D1]
critical_sections: [D1]
criteria:
  - id: d1.team
    section: D1
    description: team named
    critical: true
    rule: presence
    evidence: evidence_exempt
    field: team
`
	path := filepath.Join(t.TempDir(), "8d_v2.yaml")
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	if _, err := r.RegisterFile(path); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}

	if _, err := r.Load("8d", 1); !errors.Is(err, ErrSchemaVersionMismatch) {
		t.Errorf("Load(8d, 1) after replace: got %v want ErrSchemaVersionMismatch", err)
	}
	s, err := r.Load("8d", 2)
	if err != nil {
		t.Fatalf("Load(8d, 2): %v", err)
	}
	if s.Version != 2 {
		t.Errorf("version: got %d want 2", s.Version)
	}
}
