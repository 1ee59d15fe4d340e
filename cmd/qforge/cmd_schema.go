package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qforge/internal/format"
	"qforge/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "List built-in rule schemas or validate a schema file",
	Long: `With no arguments, lists the registered document types. With a file
argument, parses and validates the schema and prints its criteria.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	reg, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, dt := range reg.DocTypes() {
			fmt.Fprintln(out, dt)
		}
		return nil
	}

	sch, err := reg.RegisterFile(args[0])
	if err != nil {
		return fmt.Errorf("validate %s: %w", args[0], err)
	}

	fmt.Fprintf(out, "Doc type: %s (version %d)\n", sch.DocType, sch.Version)
	fmt.Fprintf(out, "Sections: %d, criteria: %d\n\n", len(sch.Sections), len(sch.Criteria))

	tbl := format.NewTable(format.ASCII)
	tbl.Header("ID", "Section", "Rule", "Critical", "Evidence")
	for _, c := range sch.Criteria {
		tbl.Row(c.ID, c.Section, string(c.Rule), c.Critical, string(c.Evidence))
	}
	fmt.Fprintln(out, tbl.String())
	return nil
}
