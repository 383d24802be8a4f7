package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tokenwatch/internal/app"
)

var (
	alertsGroupID  int64
	alertChain     string
	alertDirection string
	alertTarget    string
	alertCooldown  time.Duration
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAlerts(cmd)
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts (all active, or one group's with --group)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAlerts(cmd)
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add <symbol-or-address>",
	Short: "Create a price alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := getApp().AddAlert(cmd.Context(), app.AlertAddOptions{
			GroupID:   alertsGroupID,
			Ref:       args[0],
			Chain:     alertChain,
			Direction: alertDirection,
			Target:    alertTarget,
			Cooldown:  alertCooldown,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "alert %d created\n", id)
		return nil
	},
}

var alertsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Deactivate an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		if err := getApp().RemoveAlert(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "alert %d deactivated\n", id)
		return nil
	},
}

func listAlerts(cmd *cobra.Command) error {
	alerts, err := getApp().ListAlerts(cmd.Context(), alertsGroupID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts")
		return nil
	}

	for _, a := range alerts {
		last := "never"
		if a.LastTriggeredAt != nil {
			last = a.LastTriggeredAt.UTC().Format(time.RFC3339)
		}
		state := "active"
		if !a.Active {
			state = "inactive"
		}
		chain := string(a.Query.Chain)
		if chain == "" {
			chain = "-"
		}
		fmt.Fprintf(out, "%d\tgroup=%d\t%s@%s\t%s $%s\tcooldown=%s\tlast=%s\t%s\n",
			a.ID, a.GroupID, a.Query.Ref, chain, a.Direction, a.Target.String(), a.Cooldown, last, state)
	}
	return nil
}

func init() {
	alertsCmd.PersistentFlags().Int64Var(&alertsGroupID, "group", 0, "Group id (0 = all active alerts)")
	alertsAddCmd.Flags().StringVar(&alertChain, "chain", "", "Chain hint for the token reference")
	alertsAddCmd.Flags().StringVar(&alertDirection, "direction", "above", "Crossing direction: above or below")
	alertsAddCmd.Flags().StringVar(&alertTarget, "target", "", "Target price")
	alertsAddCmd.Flags().DurationVar(&alertCooldown, "cooldown", time.Hour, "Minimum time between firings")
	_ = alertsAddCmd.MarkFlagRequired("target")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAddCmd)
	alertsCmd.AddCommand(alertsRemoveCmd)
}
