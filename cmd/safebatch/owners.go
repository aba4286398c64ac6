package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/chain"
)

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Show the Safe's version, nonce, threshold and owners",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		safe, err := safeAddressOnly(settings)
		if err != nil {
			return err
		}
		chainID, err := settings.ParseChainID()
		if err != nil {
			return err
		}
		c, err := dialChain(ctx, settings, chainID, safe, nil, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		version, err := c.Version(ctx)
		if err != nil {
			return err
		}
		nonce, err := c.SafeNonce(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "SAFE\t%s\n", safe.Hex())
		_, _ = fmt.Fprintf(w, "CHAIN\t%s\n", c.ChainID())
		_, _ = fmt.Fprintf(w, "VERSION\t%s\n", version)
		_, _ = fmt.Fprintf(w, "NONCE\t%s\n", nonce)
		_ = w.Flush()

		var signer common.Address
		if common.IsHexAddress(settings.SignerAddress) {
			signer = common.HexToAddress(settings.SignerAddress)
		}
		printOwners(ctx, c, signer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ownersCmd)
}

// printOwners lists owners and the threshold. A signer outside the owner
// set only gets a warning; the Safe rejects its signatures with GS026.
func printOwners(ctx context.Context, c *chain.Client, signer common.Address) {
	owners, err := c.Owners(ctx)
	if err != nil {
		fmt.Println("[owners] error:", err)
		return
	}
	threshold, err := c.Threshold(ctx)
	if err != nil {
		fmt.Println("[owners] threshold error:", err)
	}
	fmt.Printf("Owners (%d, threshold %s):\n", len(owners), orUnknown(threshold))
	isOwner := false
	for _, o := range owners {
		mark := " "
		if o == signer {
			mark, isOwner = "*", true
		}
		fmt.Printf("  %s %s\n", mark, o.Hex())
	}
	if signer == (common.Address{}) {
		return
	}
	if !isOwner {
		fmt.Printf("[!] signer %s is not an owner of this Safe; execTransaction will revert\n", signer.Hex())
	}
	if threshold != nil && threshold.Int64() > 1 {
		fmt.Printf("[!] threshold is %s but only one signature is attached\n", threshold)
	}
}

func orUnknown(x *big.Int) string {
	if x == nil {
		return "unknown"
	}
	return x.String()
}
