package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orderdesk-hq/callisto/pkg/config"
	"orderdesk-hq/callisto/pkg/submit"
)

// Exit codes: 0 success, 1 validation, 2 auth, 3 transient, 4 fatal.
const (
	exitOK         = 0
	exitValidation = 1
	exitAuth       = 2
	exitTransient  = 3
	exitFatal      = 4
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - spreadsheet order intake case engine",
	Long: `Callisto converts uploaded spreadsheet order files into draft sales
orders in an external bookkeeping system through a human-in-the-loop
workflow:

  - Deterministic spreadsheet extraction with cell-level evidence
  - Three-provider AI committee cross-checking the column mapping
  - Catalog resolution for customers and items
  - Idempotent draft-order submission with a durable retry queue
  - A fully replayable, append-only audit log per case`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps the failure class onto the exit
// code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var validation *config.ValidationError
	if errors.As(err, &validation) {
		return exitValidation
	}
	var auth *submit.AuthError
	if errors.As(err, &auth) {
		return exitAuth
	}
	var transient *submit.TransientError
	if errors.As(err, &transient) {
		return exitTransient
	}
	return exitFatal
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
