package commands

import (
	"fmt"

	"github.com/dyluth/sitesync/internal/printer"
	"github.com/dyluth/sitesync/pkg/syncer"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <project-id>",
	Short: "Select a project and refresh every store",
	Long: `Select a project and fetch budget, inventory, schedule, team,
documents, uploads and chat in parallel. One failing store does not stop
the others; the per-store outcome is printed.

Examples:
  sitesync sync proj-42 --token $TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireAuth(); err != nil {
		return err
	}

	report, err := selectAndSync(cmd, rt, args[0])
	if err != nil {
		return err
	}
	printer.SyncReport(*report)
	return nil
}

// selectAndSync selects id and returns the sync report. A project that is
// not in the list is reported with guidance.
func selectAndSync(cmd *cobra.Command, rt *runtime, id string) (*syncer.Report, error) {
	ctx := cmd.Context()
	if _, err := rt.client.ListProjects(ctx); err != nil {
		printer.Warning("remote list failed: %v\n", err)
	}
	printer.Step("Selecting %s\n", id)
	p, report, err := rt.client.SelectProject(ctx, id)
	if err != nil {
		return nil, printer.Error(
			fmt.Sprintf("project '%s' not found", id),
			fmt.Sprintf("Error: %v", err),
			[]string{"List projects:\n  sitesync projects"},
		)
	}
	if report == nil {
		return nil, printer.Error(
			fmt.Sprintf("project '%s' is local", p.ID),
			"Local projects only exist on this machine and cannot be synced.",
			nil,
		)
	}
	return report, nil
}
