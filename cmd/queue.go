package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue [company ...]",
	Short: "Sync several companies back to back",
	Long: `Queue the named companies and run them one at a time in the order
given. Ctrl-C cancels the in-flight sync and marks the rest cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")

		a, err := openApp(kind == "incremental")
		if err != nil {
			return err
		}
		defer a.close()

		q := queue.New(a.sync)
		if err := q.Add(args, kind); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := q.Start(ctx); err != nil {
			return err
		}

		for {
			select {
			case <-ctx.Done():
				q.Cancel()
			case <-time.After(500 * time.Millisecond):
			}
			st := q.Status()
			if !st.Processing {
				printJSON(st)
				for _, it := range st.Items {
					if it.Status == "failed" {
						return fmt.Errorf("queue finished with failures")
					}
				}
				return nil
			}
		}
	},
}

func init() {
	queueCmd.Flags().String("type", "incremental", "sync type: full or incremental")
	rootCmd.AddCommand(queueCmd)
}
