package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full or incremental sync",
	Long: `Run one sync against the Gateway.

A full sync rebuilds the company's tables from scratch; an incremental
sync imports only rows changed since the last run and reconciles
deletions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")
		company, _ := cmd.Flags().GetString("company")
		parallel, _ := cmd.Flags().GetBool("parallel")
		dismiss, _ := cmd.Flags().GetBool("dismiss-incomplete")
		force, _ := cmd.Flags().GetBool("force")

		if kind != "full" && kind != "incremental" {
			return fmt.Errorf("--type must be full or incremental")
		}

		a, err := openApp(kind == "incremental")
		if err != nil {
			return err
		}
		defer a.close()

		if dismiss {
			if err := syncer.DismissIncomplete(a.cfg.Sync.StateFile); err != nil {
				return err
			}
			fmt.Println("dismissed incomplete sync marker")
			return nil
		}

		if crash, err := syncer.IncompleteSync(a.cfg.Sync.StateFile); err != nil {
			return err
		} else if crash != nil && !force {
			fmt.Printf("a previous %s sync died mid-run (last table %q, %d rows); the database may be half-synced\n",
				crash.SyncType, crash.CurrentTable, crash.RowsProcessed)
			fmt.Println("re-run with --force to continue, or --dismiss-incomplete to discard the marker")
			return fmt.Errorf("incomplete sync detected")
		}

		if !parallel {
			parallel = a.cfg.Sync.Mode == "parallel"
		}

		var res syncer.Result
		if kind == "full" {
			res, err = a.sync.FullSync(context.Background(), company, parallel)
		} else {
			res, err = a.sync.IncrementalSync(context.Background(), company)
		}
		printJSON(res)
		return err
	},
}

func init() {
	syncCmd.Flags().String("type", "full", "sync type: full or incremental")
	syncCmd.Flags().String("company", "", "company to sync (default: configured or active company)")
	syncCmd.Flags().Bool("parallel", false, "fetch tables from the Gateway concurrently")
	syncCmd.Flags().Bool("force", false, "run even if a previous sync died mid-run")
	syncCmd.Flags().Bool("dismiss-incomplete", false, "discard a stale crash marker and exit")
	rootCmd.AddCommand(syncCmd)
}
