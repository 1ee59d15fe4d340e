package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"qforge/internal/audit"
	"qforge/internal/experience"
	"qforge/internal/format"
	"qforge/internal/gate"
	"qforge/internal/render"
	"qforge/internal/report"
	"qforge/internal/schema"
)

var auditFlags struct {
	dbPath        string
	outDir        string
	schemaPath    string
	parallel      int
	stage2Timeout time.Duration
	maxAudits     int
}

var auditCmd = &cobra.Command{
	Use:   "audit <report>...",
	Short: "Run the full audit cycle on one or more report files",
	Long: `Audits each report file (JSON or YAML) against its rule schema and writes
a review report per input. Terminal decisions and experience records are
appended to the store DB.

The built-in logic audit is a non-generative placeholder: it records the
handoff questions as open follow-ups. For a real secondary review, run
'qforge serve' and drive the audit through an MCP agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.StringVar(&auditFlags.dbPath, "db", experience.DefaultDBPath, "Experience DB path")
	f.StringVarP(&auditFlags.outDir, "out", "o", ".qforge/reviews", "Review report output directory")
	f.StringVar(&auditFlags.schemaPath, "schema", "", "Extra rule schema file to register (YAML)")
	f.IntVar(&auditFlags.parallel, "parallel", 4, "Max reports audited concurrently")
	f.DurationVar(&auditFlags.stage2Timeout, "stage2-timeout", 5*time.Minute, "Secondary review deadline per report")
	f.IntVar(&auditFlags.maxAudits, "max-logic-audits", 3, "Logic audit re-entries before a report is rejected as exhausted")
}

func runAudit(cmd *cobra.Command, args []string) error {
	reg, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	if auditFlags.schemaPath != "" {
		if _, err := reg.RegisterFile(auditFlags.schemaPath); err != nil {
			return fmt.Errorf("register schema: %w", err)
		}
	}

	reps := make([]*report.Report, 0, len(args))
	for _, path := range args {
		rep, err := report.LoadFromPath(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		reps = append(reps, rep)
	}

	store, err := experience.Open(auditFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open experience store: %w", err)
	}
	defer store.Close()

	if err := os.MkdirAll(auditFlags.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	persister := &audit.StorePersister{
		Experience: store,
		SaveReport: func(res *gate.AuditResult, narrative string) (audit.PersistSignal, error) {
			path := filepath.Join(auditFlags.outDir, res.ReportName+".review.md")
			if err := os.WriteFile(path, []byte(render.Review(res, narrative)), 0o644); err != nil {
				return "", err
			}
			return audit.SignalSaved, nil
		},
	}

	opts := audit.Options{
		Stage2Timeout:  auditFlags.stage2Timeout,
		MaxLogicAudits: auditFlags.maxAudits,
	}
	outcomes, err := audit.RunAll(cmd.Context(), reg, reps, templateReviewer{}, persister, opts, auditFlags.parallel)
	if err != nil {
		return err
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("Report", "Decision", "Reason", "Sections", "Blocking")
	approved := 0
	for i, out := range outcomes {
		res := out.Result
		if res.Decision == gate.Approved {
			approved++
		}
		tbl.Row(reps[i].Name, string(res.Decision), out.Reason, summaryLine(res), len(out.Failing))
	}
	tbl.Footer("", "", "", "approved", fmt.Sprintf("%d/%d", approved, len(outcomes)))

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, tbl.String())
	fmt.Fprintf(w, "Review reports written to %s\n", auditFlags.outDir)
	return nil
}

func summaryLine(res *gate.AuditResult) string {
	parts := make([]string, 0, len(res.Summaries))
	for _, s := range res.Summaries {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ", ")
}

// templateReviewer stands in for a generative reviewer when auditing from
// the CLI. It answers every handoff question as an open follow-up so the
// narrative never blocks approval but still lands in the review report.
type templateReviewer struct{}

func (templateReviewer) Review(_ context.Context, pkt *audit.HandoffPacket) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated logic audit for %s. Gate verdicts stand; residual risk questions are left open for the process owner:\n", pkt.ReportName)
	for i, q := range pkt.Questions {
		fmt.Fprintf(&b, "%d. %s Not assessed offline.\n", i+1, q)
	}
	return b.String(), nil
}
