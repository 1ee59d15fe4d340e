package mcp

import (
	"fmt"
	"strings"

	"qforge/internal/audit"
	"qforge/internal/experience"
)

// logicAuditPrompt frames the secondary review. The reviewer receives
// only the result digest and the bounded questions, never the raw
// document, and cannot change any gate verdict.
const logicAuditPrompt = `You are performing the logic audit of a corrective-action report that
has passed every deterministic gate criterion. The gate verdicts are
final; do not re-litigate them. Your task is to flag residual logical
risk the criteria cannot see.

Answer each question below. For every risk you flag, state which section
the concern arises from and what evidence would resolve it. If you find
no residual risk, say so explicitly. Return a plain narrative; it will
be attached to the review report verbatim.`

// BuildLogicAuditPrompt renders the prompt for one handoff packet,
// including prior outcomes for the same fingerprint as advisory context.
func BuildLogicAuditPrompt(pkt *audit.HandoffPacket, priors []*experience.Record) string {
	var b strings.Builder
	b.WriteString(logicAuditPrompt)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Report: %s (fingerprint %s)\n", pkt.ReportName, shortFP(pkt.Fingerprint))
	b.WriteString("Gate summary:\n")
	for _, s := range pkt.Summaries {
		fmt.Fprintf(&b, "  - %s\n", s.String())
	}

	b.WriteString("\nQuestions:\n")
	for i, q := range pkt.Questions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
	}

	if len(priors) > 0 {
		b.WriteString("\nPrior audits of this report (advisory only, the current gate verdicts stand):\n")
		for _, r := range priors {
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", r.CreatedAt, r.Outcome, r.Summary)
		}
	}
	return b.String()
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
