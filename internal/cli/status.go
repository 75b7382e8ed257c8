package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hey-Diga/imploid/internal/config"
	"github.com/Hey-Diga/imploid/internal/output"
	"github.com/Hey-Diga/imploid/internal/statestore"
)

// statusCmd is a read-only operator surface, grounded on pm's
// cmd/status.go: it loads the state store and renders active IssueState
// rows. It performs no mutation and takes no part in scheduling.
var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show active (issue, processor) pipelines",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func statusRun() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	store := statestore.New(dir + "/processing-state.json")
	if err := store.Initialize(func(string, ...any) {}); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	active := store.ActiveStates()
	if len(active) == 0 {
		ui.Info("no active pipelines")
		return nil
	}

	table := ui.Table([]string{"Issue", "Processor", "Status", "Branch", "Agent", "Repo"})
	for _, st := range active {
		table.Append([]string{
			fmt.Sprintf("#%d", st.IssueNumber),
			string(st.ProcessorName),
			output.StatusColor(string(st.Status)),
			st.Branch,
			fmt.Sprintf("%d", st.AgentIndex),
			st.RepoName,
		})
	}
	return table.Render()
}
