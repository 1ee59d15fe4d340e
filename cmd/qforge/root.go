package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qforge/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "qforge",
	Short: "Deterministic gate audits for corrective-action reports",
	Long: "Qforge audits 8D corrective-action reports against versioned rule\n" +
		"schemas, citing verbatim evidence for every verdict.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(experienceCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
