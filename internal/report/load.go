package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// LoadFromPath reads a report file (YAML or JSON) and returns the parsed Report.
// Format is detected by extension (.yaml/.yml → YAML, .json → JSON) or by
// content (first non-whitespace char).
func LoadFromPath(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses a report from bytes. ext is the file extension for format
// hint; empty = detect from content.
func Load(data []byte, ext string) (*Report, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	var r Report
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse report json: %w", err)
		}
	case ".yaml":
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse report yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported report format %q", ext)
	}
	if r.DocType == "" {
		r.DocType = "8d"
	}
	return &r, nil
}

// sectionHeading matches D1..D8 headings at line starts, tolerating the
// separators the source documents use (".", ":", "、", "：").
var sectionHeading = regexp.MustCompile(`(?mi)^\s*(D[1-8])[\.、:：\s]`)

// SplitSections slices a flat document text into D1..D8 sections by
// heading. It is an ingestion convenience for callers holding plain text;
// parsed documents should supply sections directly.
func SplitSections(text string) map[string]string {
	out := map[string]string{}
	locs := sectionHeading.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		name := strings.ToUpper(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		// First heading wins on duplicates.
		if _, seen := out[name]; !seen {
			out[name] = body
		}
	}
	return out
}

// FromText builds a Report from a flat document text using SplitSections.
// Sub-fields are left empty; the caller (or the gate's enumeration rules,
// which work on raw text) fill the gaps.
func FromText(name, text string) *Report {
	sections := SplitSections(text)
	r := &Report{Name: name, DocType: "8d", SchemaVersion: 1}
	for _, sec := range []string{"D1", "D2", "D3", "D4", "D5", "D6", "D7", "D8"} {
		r.Sections = append(r.Sections, Section{Name: sec, Text: sections[sec]})
	}
	return r
}
