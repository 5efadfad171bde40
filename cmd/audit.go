package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the change trail",
}

var auditHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List audit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		var f audit.Filter
		f.Table, _ = cmd.Flags().GetString("table")
		f.GUID, _ = cmd.Flags().GetString("guid")
		f.Action, _ = cmd.Flags().GetString("action")
		f.Company, _ = cmd.Flags().GetString("company")
		f.StartDate, _ = cmd.Flags().GetString("start")
		f.EndDate, _ = cmd.Flags().GetString("end")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		f.Offset, _ = cmd.Flags().GetInt("offset")

		events, err := audit.History(a.store, f)
		if err != nil {
			return err
		}
		printJSON(events)
		return nil
	},
}

var auditRecordCmd = &cobra.Command{
	Use:   "record <table> <guid>",
	Short: "Show the full history of one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		events, err := audit.RecordHistory(a.store, args[0], args[1])
		if err != nil {
			return err
		}
		printJSON(events)
		return nil
	},
}

var auditSessionCmd = &cobra.Command{
	Use:   "session <session-id>",
	Short: "Show every change from one sync session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		events, byAction, err := audit.SessionChanges(a.store, args[0])
		if err != nil {
			return err
		}
		printJSON(struct {
			SessionID string           `json:"session_id"`
			ByAction  map[string]int64 `json:"by_action"`
			Changes   []audit.Event    `json:"changes"`
		}{args[0], byAction, events})
		return nil
	},
}

var auditDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "List restorable deleted records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		table, _ := cmd.Flags().GetString("table")
		company, _ := cmd.Flags().GetString("company")
		includeRestored, _ := cmd.Flags().GetBool("include-restored")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		records, err := audit.DeletedRecords(a.store, table, company, includeRestored, limit, offset)
		if err != nil {
			return err
		}
		printJSON(records)
		return nil
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Audit trail statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		company, _ := cmd.Flags().GetString("company")
		stats, err := audit.GetStats(a.store, company)
		if err != nil {
			return err
		}
		printJSON(stats)
		return nil
	},
}

var auditRestoreCmd = &cobra.Command{
	Use:   "restore <deleted-id>",
	Short: "Put a deleted record back in its table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := audit.Restore(a.store, id)
		if err != nil {
			return err
		}
		fmt.Printf("restored %s to %s\n", rec.GUID, rec.Table)
		return nil
	},
}

func init() {
	auditHistoryCmd.Flags().String("table", "", "filter by table")
	auditHistoryCmd.Flags().String("guid", "", "filter by record guid")
	auditHistoryCmd.Flags().String("action", "", "filter by action (INSERT/UPDATE/DELETE)")
	auditHistoryCmd.Flags().String("company", "", "filter by company")
	auditHistoryCmd.Flags().String("start", "", "start date YYYY-MM-DD")
	auditHistoryCmd.Flags().String("end", "", "end date YYYY-MM-DD")
	auditHistoryCmd.Flags().Int("limit", 100, "max events")
	auditHistoryCmd.Flags().Int("offset", 0, "pagination offset")

	auditDeletedCmd.Flags().String("table", "", "filter by table")
	auditDeletedCmd.Flags().String("company", "", "filter by company")
	auditDeletedCmd.Flags().Bool("include-restored", false, "include already restored records")
	auditDeletedCmd.Flags().Int("limit", 100, "max records")
	auditDeletedCmd.Flags().Int("offset", 0, "pagination offset")

	auditStatsCmd.Flags().String("company", "", "filter by company")

	auditCmd.AddCommand(auditHistoryCmd, auditRecordCmd, auditSessionCmd,
		auditDeletedCmd, auditStatsCmd, auditRestoreCmd)
	rootCmd.AddCommand(auditCmd)
}
