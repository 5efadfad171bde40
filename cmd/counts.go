package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/store"
)

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Row counts per mirrored table and database size",
	RunE: func(cmd *cobra.Command, args []string) error {
		company, _ := cmd.Flags().GetString("company")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		counts, err := a.store.TableCounts(a.spec.TableNames(), company)
		if err != nil {
			return err
		}
		size, err := a.store.SizeBytes()
		if err != nil {
			return err
		}

		printJSON(struct {
			DatabasePath string             `json:"database_path"`
			SizeBytes    int64              `json:"size_bytes"`
			Tables       []store.TableCount `json:"tables"`
		}{a.cfg.Database.Path, size, counts})
		return nil
	},
}

func init() {
	countsCmd.Flags().String("company", "", "count only one company's rows")
	rootCmd.AddCommand(countsCmd)
}
