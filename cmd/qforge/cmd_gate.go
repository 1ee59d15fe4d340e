package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qforge/internal/consistency"
	"qforge/internal/gate"
	"qforge/internal/render"
	"qforge/internal/report"
	"qforge/internal/schema"
)

var gateFlags struct {
	schemaPath string
}

var gateCmd = &cobra.Command{
	Use:   "gate <report>",
	Short: "Evaluate the deterministic gate for one report (dry run)",
	Long: `Runs the gate and consistency checks on a single report file and prints
the review to stdout. Nothing is persisted and no logic audit runs, so the
printed decision is the stage-one verdict only.`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

func init() {
	gateCmd.Flags().StringVar(&gateFlags.schemaPath, "schema", "", "Extra rule schema file to register (YAML)")
}

func runGate(cmd *cobra.Command, args []string) error {
	reg, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	if gateFlags.schemaPath != "" {
		if _, err := reg.RegisterFile(gateFlags.schemaPath); err != nil {
			return fmt.Errorf("register schema: %w", err)
		}
	}

	rep, err := report.LoadFromPath(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}
	sch, err := reg.Load(rep.DocType, rep.SchemaVersion)
	if err != nil {
		return err
	}

	res, err := gate.Evaluate(rep, sch)
	if err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := consistency.Check(res, rep, sch); err != nil {
		return fmt.Errorf("consistency: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), render.Review(res, ""))
	return nil
}
