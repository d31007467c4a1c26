package commands

import (
	"github.com/dyluth/sitesync/internal/printer"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List known projects",
	Long: `List every project the client knows about.

Authenticated sessions merge the remote list with local projects that have
not been synced yet; offline sessions show the persisted list. The current
project is marked with *.`,
	Args: cobra.NoArgs,
	RunE: runProjects,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.client.ListProjects(ctx)
	if err != nil {
		printer.Warning("remote list failed, showing cached projects: %v\n", err)
	}
	printer.Projects(list, rt.client.Projects().CurrentID())
	return nil
}
