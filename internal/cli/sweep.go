package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired durable cache entries once",
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := getApp().SweepCache(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired cache entries\n", deleted)
		return nil
	},
}
