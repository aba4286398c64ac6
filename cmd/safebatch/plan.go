package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/chain"
	"github.com/ligun0805/safe-batch/internal/safecore"
)

var planFlags batchFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build and sign every transfer without submitting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), planFlags, true)
	},
}

func init() {
	planFlags.register(planCmd, true)
	rootCmd.AddCommand(planCmd)
}

// crossCheckHashes asks the Safe to hash each signed item and fails on the
// first mismatch, which would mean the local EIP-712 domain is wrong.
func crossCheckHashes(ctx context.Context, c *chain.Client, results []safecore.SubmissionResult) error {
	checked := 0
	for _, r := range results {
		if r.State != safecore.StateSigned {
			continue
		}
		tx, err := safecore.BuildSafeTransaction(r.Transfer, r.Nonce)
		if err != nil {
			return err
		}
		onChain, err := c.OnChainTxHash(ctx, tx)
		if err != nil {
			return fmt.Errorf("getTransactionHash for item %d: %w", r.Index, err)
		}
		if onChain != r.SafeTxHash {
			return fmt.Errorf("%w: item %d hash %s, Safe computes %s", safecore.ErrSigning, r.Index, r.SafeTxHash.Hex(), onChain.Hex())
		}
		checked++
	}
	fmt.Printf("SafeTx hashes match getTransactionHash for %d item(s)\n", checked)
	return nil
}
