// Package render turns an audit result into the Markdown review report
// handed back to report authors. The rendering is lossless about failure
// derivation: every failing critical criterion appears with its citation
// or Not Found marker.
package render

import (
	"fmt"
	"strings"

	"qforge/internal/evidence"
	"qforge/internal/format"
	"qforge/internal/gate"
)

const evidenceWidth = 90

// Review renders the full Markdown review report. narrative is the
// secondary-review output, empty when the gate rejected before stage two.
func Review(res *gate.AuditResult, narrative string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review Report: %s\n\n", res.ReportName)
	fmt.Fprintf(&b, "- Document type: %s (schema v%d)\n", res.DocType, res.SchemaVersion)
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n", shortFingerprint(res.Fingerprint))
	fmt.Fprintf(&b, "- Decision: **%s**\n\n", res.Decision)

	b.WriteString("## I. Executive Summary\n\n")
	b.WriteString(summaryTable(res))
	b.WriteString("\n\n")

	b.WriteString("## II. Blocking Findings\n\n")
	failing := res.FailingCritical()
	if len(failing) == 0 {
		b.WriteString("All critical criteria passed.\n")
	} else {
		b.WriteString(findingsTable(failing))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## III. Detailed Verdicts\n\n")
	for _, section := range sectionOrder(res) {
		fmt.Fprintf(&b, "### %s\n\n", section)
		b.WriteString(sectionTable(res, section))
		b.WriteString("\n\n")
	}

	b.WriteString("## IV. Logic Audit Narrative\n\n")
	if strings.TrimSpace(narrative) == "" {
		b.WriteString("_Not performed._\n")
	} else {
		b.WriteString(strings.TrimSpace(narrative))
		b.WriteString("\n")
	}

	return b.String()
}

func summaryTable(res *gate.AuditResult) string {
	tb := format.NewTable(format.Markdown)
	tb.Header("Section", "Result", "Critical")
	for _, s := range res.Summaries {
		critical := ""
		if s.Critical {
			critical = "yes"
		}
		tb.Row(s.Section, fmt.Sprintf("%d/%d", s.Passed, s.Total), critical)
	}
	return tb.String()
}

func findingsTable(failing []gate.Verdict) string {
	tb := format.NewTable(format.Markdown)
	tb.Header("Criterion", "Section", "Status", "Evidence")
	for _, v := range failing {
		tb.Row(v.ID, v.Section, string(v.Status), quoteCell(&v))
	}
	return tb.String()
}

func sectionTable(res *gate.AuditResult, section string) string {
	tb := format.NewTable(format.Markdown)
	tb.Header("Criterion", "Status", "Evidence", "Note")
	for _, v := range res.Verdicts {
		if v.Section != section {
			continue
		}
		v := v
		tb.Row(v.ID, format.StatusMark(string(v.Status))+" "+string(v.Status), quoteCell(&v), format.EscapeCell(v.Detail))
	}
	return tb.String()
}

// quoteCell renders the citation verbatim (escaped for the table) or the
// Not Found marker. A NOT_FOUND verdict with a citation is showing claim
// context, flagged as such.
func quoteCell(v *gate.Verdict) string {
	if v.Citation == nil {
		return evidence.NotFound
	}
	quote := format.EscapeCell(format.Truncate(v.Citation.Quote, evidenceWidth))
	if v.Status == gate.NotFound {
		return fmt.Sprintf("%s (claims: %q)", evidence.NotFound, quote)
	}
	return fmt.Sprintf("%q", quote)
}

func sectionOrder(res *gate.AuditResult) []string {
	var order []string
	seen := map[string]bool{}
	for _, v := range res.Verdicts {
		if !seen[v.Section] {
			seen[v.Section] = true
			order = append(order, v.Section)
		}
	}
	return order
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
