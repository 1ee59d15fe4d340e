package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qforge/internal/experience"
	"qforge/internal/format"
)

var experienceFlags struct {
	dbPath      string
	fingerprint string
	limit       int
}

var experienceCmd = &cobra.Command{
	Use:   "experience",
	Short: "List recorded audit dispositions",
	Long: `Lists experience records, newest first. With --fingerprint, only records
for that report fingerprint are shown. Records are advisory history; they
never change a gate verdict.`,
	RunE: runExperience,
}

func init() {
	f := experienceCmd.Flags()
	f.StringVar(&experienceFlags.dbPath, "db", experience.DefaultDBPath, "Experience DB path")
	f.StringVar(&experienceFlags.fingerprint, "fingerprint", "", "Filter by report fingerprint")
	f.IntVar(&experienceFlags.limit, "limit", 20, "Max records to show (0 for all)")
}

func runExperience(cmd *cobra.Command, _ []string) error {
	store, err := experience.Open(experienceFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open experience store: %w", err)
	}
	defer store.Close()

	var recs []*experience.Record
	if experienceFlags.fingerprint != "" {
		recs, err = store.Query(experienceFlags.fingerprint)
	} else {
		recs, err = store.Recent(experienceFlags.limit)
	}
	if err != nil {
		return fmt.Errorf("query experience: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No experience records.")
		return nil
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("ID", "Recorded", "Report", "Fingerprint", "Decision", "Outcome", "Summary")
	for _, r := range recs {
		tbl.Row(r.ID, r.CreatedAt, r.ReportName, format.Truncate(r.Fingerprint, 12), r.Decision, r.Outcome, format.Truncate(r.Summary, 48))
	}
	fmt.Fprintln(out, tbl.String())
	return nil
}
