package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/chain"
	"github.com/ligun0805/safe-batch/internal/safecore"
)

var (
	gasBlocks int
	gasPcts   string
)

var gasCmd = &cobra.Command{
	Use:   "gas",
	Short: "Show the fee quote used for execTransaction and recent tip statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		safe, _ := safeAddressOnly(settings)
		chainID, err := settings.ParseChainID()
		if err != nil {
			return err
		}
		c, err := dialChain(ctx, settings, chainID, safe, nil, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		q, err := c.QuoteFees(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("[net] baseFee(now): %s gwei\n", chain.FormatGwei(q.BaseFee))
		fmt.Printf("[net] tip: %s gwei (%s), maxFee: %s gwei\n", chain.FormatGwei(q.Tip), q.Source, chain.FormatGwei(q.MaxFee))

		pcts := parsePercentiles(gasPcts)
		stats, err := c.FeeHistoryStats(ctx, gasBlocks, pcts)
		if err != nil {
			fmt.Println("[net] feeHistory error:", err)
		} else {
			fmt.Printf("[net] reward stats last %d blocks:\n", gasBlocks)
			for _, p := range pcts {
				st := stats[p]
				fmt.Printf("  p%-2v min/avg/max: %s / %s / %s gwei\n", p, chain.FormatGwei(st.Min), chain.FormatGwei(st.Avg), chain.FormatGwei(st.Max))
			}
		}
		limit := new(big.Int).SetUint64(safecore.DefaultFixedGasLimit)
		fmt.Printf("[net] execTransaction(≈%d gas) worst-case cost: %s\n", safecore.DefaultFixedGasLimit, chain.FormatEther(new(big.Int).Mul(limit, q.MaxFee)))
		return nil
	},
}

func init() {
	gasCmd.Flags().IntVar(&gasBlocks, "blocks", 100, "fee history window in blocks")
	gasCmd.Flags().StringVar(&gasPcts, "pcts", "50,95,99", "reward percentiles")
	rootCmd.AddCommand(gasCmd)
}

// parsePercentiles parses "a,b,c", dropping entries outside 0..100.
func parsePercentiles(s string) []float64 {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || v > 100 {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return []float64{50, 95, 99}
	}
	return out
}
