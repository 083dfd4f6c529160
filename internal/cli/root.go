// Package cli implements the cobra-based CLI commands for dockports.
//
// Two subcommands exist: "serve" runs the HTTP API, "scan" performs a
// single aggregation pass and prints it. This file defines the root
// command that serves as the parent for both and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// Global flag variables shared across all subcommands. They are bound
// to cobra persistent flags on the root command, which makes them
// available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables detailed logging output for debugging.
	verbose bool

	// configPath names an explicit settings file. Empty means the
	// config package probes dockports.yaml in the working directory.
	configPath string
)

// Version, Commit, and Date are set at build time via ldflags. They are
// injected from the main package to display version information.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action — it only
// provides help text and global flags. Actual functionality lives in
// the serve and scan subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dockports",
		Short: "Unified view of Docker and host port usage",
		Long: `dockports merges Docker container port bindings with the host's
listening sockets into one deduplicated view of the port space: which
ports are used and by what, which are free, and which the operator has
deliberately hidden.

Run "dockports serve" to expose the view over HTTP, or "dockports scan"
for a one-shot listing on the terminal.`,

		// We format errors ourselves (text or JSON based on --json), so
		// cobra's automatic usage/error printing is disabled.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to settings file (default: dockports.yaml if present)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewScanCommand())

	return rootCmd
}

// serverError marks an HTTP server startup or runtime failure so
// Execute can map it onto its dedicated exit code.
type serverError struct {
	err error
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: %v", e.err)
}

func (e *serverError) Unwrap() error {
	return e.err
}

// Execute runs the root command and translates errors into process
// exit codes: configuration failures, an unreachable Docker daemon,
// and server failures each get their own code so scripts and service
// managers can tell them apart.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	printError(err)

	var srvErr *serverError
	if errors.As(err, &srvErr) {
		os.Exit(int(model.ExitServerError))
	}
	os.Exit(int(model.ExitCodeFor(err)))
}

// printError outputs an error message in the appropriate format (JSON
// or text) based on the --json global flag. Errors always go to
// stderr; stdout is reserved for successful command output.
func printError(err error) {
	if jsonOutput {
		errObj := map[string]any{
			"error": map[string]any{
				"message": err.Error(),
			},
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// VerboseLog prints a message to stderr only when verbose mode is
// enabled.
func VerboseLog(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
