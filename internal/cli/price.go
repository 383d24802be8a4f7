package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenwatch/internal/app"
)

var (
	priceChain string
	priceFresh bool
)

var priceCmd = &cobra.Command{
	Use:   "price <symbol-or-address>",
	Short: "Resolve one token reference to a market record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := getApp().ResolvePrice(cmd.Context(), app.PriceOptions{
			Ref:   args[0],
			Chain: priceChain,
			Fresh: priceFresh,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", rec.Symbol, rec.Name)
		fmt.Fprintf(out, "price:      $%s\n", rec.Price.String())
		fmt.Fprintf(out, "change 24h: %s (%s%%)\n", rec.Change24h.StringFixed(6), rec.ChangePct24h.StringFixed(2))
		fmt.Fprintf(out, "market cap: $%s\n", rec.MarketCap.StringFixed(0))
		fmt.Fprintf(out, "volume 24h: $%s\n", rec.Volume24h.StringFixed(0))
		if rec.Chain != "" {
			fmt.Fprintf(out, "chain:      %s\n", rec.Chain)
		}
		if rec.Address != "" {
			fmt.Fprintf(out, "address:    %s\n", rec.Address)
		}
		fmt.Fprintf(out, "source:     %s\n", rec.Source)
		if rec.URL != "" {
			fmt.Fprintf(out, "link:       %s\n", rec.URL)
		}
		return nil
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceChain, "chain", "", "Chain hint (ethereum, bsc, polygon, solana)")
	priceCmd.Flags().BoolVar(&priceFresh, "fresh", false, "Bypass both cache tiers for this lookup")
}
