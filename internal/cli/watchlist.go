package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	watchlistGroupID int64
	watchlistChain   string
)

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage the tokens the warm-up loop keeps fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWatchlist(cmd)
	},
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWatchlist(cmd)
	},
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add <symbol-or-address>",
	Short: "Add a token to the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getApp().AddWatchlistToken(cmd.Context(), watchlistGroupID, args[0], watchlistChain); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s added to watchlist\n", args[0])
		return nil
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove <symbol-or-address>",
	Short: "Remove a token from the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getApp().RemoveWatchlistToken(cmd.Context(), watchlistGroupID, args[0], watchlistChain); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed from watchlist\n", args[0])
		return nil
	},
}

func listWatchlist(cmd *cobra.Command) error {
	queries, err := getApp().ListWatchlist(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(queries) == 0 {
		fmt.Fprintln(out, "watchlist is empty")
		return nil
	}
	for _, q := range queries {
		chain := string(q.Chain)
		if chain == "" {
			chain = "-"
		}
		fmt.Fprintf(out, "%s\t%s\n", q.Ref, chain)
	}
	return nil
}

func init() {
	watchlistCmd.PersistentFlags().Int64Var(&watchlistGroupID, "group", 0, "Group id owning the entry")
	watchlistCmd.PersistentFlags().StringVar(&watchlistChain, "chain", "", "Chain hint for the token reference")

	watchlistCmd.AddCommand(watchlistListCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
}
