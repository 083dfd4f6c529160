// Package cli — scan.go implements the "dockports scan" command.
//
// scan performs a single aggregation pass and prints the classified
// view as a text table or, with --json, as the same snapshot document
// the HTTP API serves.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockports/internal/aggregate"
	"github.com/mmr-tortoise/dockports/internal/config"
	"github.com/mmr-tortoise/dockports/internal/docker"
	"github.com/mmr-tortoise/dockports/internal/hidden"
	"github.com/mmr-tortoise/dockports/internal/hostscan"
	"github.com/mmr-tortoise/dockports/internal/model"
)

// scanFlags holds the flag values for the scan command.
type scanFlags struct {
	// hidden includes the hidden used records in the output.
	hidden bool
}

// NewScanCommand creates the "scan" cobra command.
func NewScanCommand() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the merged port view once",
		Long: `Perform one aggregation pass and print the result.

The pass queries Docker and the host socket tables exactly like the
HTTP API does, including the hidden-port overlay from the configured
state file.

Examples:
  dockports scan
  dockports scan --hidden
  dockports scan --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.hidden, "hidden", false, "Include hidden used ports in the listing")

	return cmd
}

// runScan is the main logic of the scan command.
func runScan(ctx context.Context, flags *scanFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := hidden.NewStore(cfg.HiddenPortsFile)
	if err != nil {
		return err
	}

	names, err := config.LoadServiceNames(cfg.ServiceNamesFile)
	if err != nil {
		return err
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	service := aggregate.NewService(
		docker.NewSource(cli),
		hostscan.NewScanner(),
		store,
		names,
		cfg.SourceTimeout,
	)

	snapshot, err := service.Snapshot(ctx)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	printSnapshotText(snapshot, flags.hidden)
	return nil
}

// printSnapshotText renders the snapshot as a fixed-width text table:
// one row per used port, one summarized row per gap range.
func printSnapshotText(s *model.Snapshot, includeHidden bool) {
	for _, source := range s.Degraded {
		fmt.Printf("Warning: %s source unavailable, results are partial\n", source)
	}

	fmt.Printf("%-14s %-15s %-22s %-22s %s\n",
		"PORT", "STATE", "OWNER", "METHOD", "SERVICE")

	for _, entry := range s.Entries {
		switch entry.Kind {
		case model.EntryPort:
			printRecordRow(entry.Record)
		case model.EntryRange:
			r := entry.Range
			fmt.Printf("%-14s %-15s %d ports\n",
				fmt.Sprintf("%d-%d", r.Start, r.End),
				r.State.String(),
				r.Count,
			)
		}
	}

	if includeHidden && len(s.Hidden) > 0 {
		fmt.Println()
		fmt.Println("Hidden used ports:")
		for i := range s.Hidden {
			printRecordRow(&s.Hidden[i])
		}
	}

	fmt.Println()
	fmt.Printf("Used: %d  Available: %d  Containers: %d\n",
		s.TotalUsed, s.TotalAvailable, s.DockerContainers)
}

// printRecordRow renders one used record. The owner column shows the
// container name or, for system records, the process name when the
// scan could resolve it.
func printRecordRow(rec *model.PortRecord) {
	owner := rec.ContainerName
	if owner == "" {
		owner = rec.Process
	}
	if owner == "" {
		owner = "-"
	}
	fmt.Printf("%-14s %-15s %-22s %-22s %s\n",
		fmt.Sprintf("%d/%s", rec.Port, rec.Protocol),
		rec.State.String(),
		owner,
		rec.Method.String(),
		rec.ServiceName,
	)
}
