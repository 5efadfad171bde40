package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/store"
	"github.com/marcus/erpsync/internal/syncer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs and company cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		sessions, err := a.store.Sessions(limit)
		if err != nil {
			return err
		}
		companies, err := a.store.SyncedCompanies()
		if err != nil {
			return err
		}
		crash, err := syncer.IncompleteSync(a.cfg.Sync.StateFile)
		if err != nil {
			return err
		}

		printJSON(struct {
			IncompleteSync *syncer.CrashState   `json:"incomplete_sync,omitempty"`
			BreakerState   string               `json:"breaker_state"`
			Companies      []store.CompanyState `json:"companies"`
			Sessions       []store.SessionRecord `json:"sessions"`
		}{crash, a.gw.BreakerState(), companies, sessions})
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "sessions to show")
	rootCmd.AddCommand(statusCmd)
}
