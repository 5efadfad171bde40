package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies open on the Gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		if local {
			companies, err := a.store.SyncedCompanies()
			if err != nil {
				return err
			}
			printJSON(companies)
			return nil
		}

		companies, err := a.gw.ListCompanies(context.Background())
		if err != nil {
			return err
		}
		printJSON(companies)
		return nil
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Probe the Gateway and report connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		printJSON(a.gw.TestConnection(context.Background()))
		return nil
	},
}

func init() {
	companiesCmd.Flags().Bool("local", false, "list companies already synced locally instead")
	rootCmd.AddCommand(companiesCmd)
	rootCmd.AddCommand(testConnectionCmd)
}
