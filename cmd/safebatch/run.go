package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/chain"
	"github.com/ligun0805/safe-batch/internal/safecore"
	"github.com/ligun0805/safe-batch/internal/transfers"
)

type batchFlags struct {
	input     string
	out       string
	failed    string
	decimals  int
	assumeYes bool
	checkHash bool
	gas       gasFlags
}

var runFlags batchFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build, sign and execute every transfer in the input file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), runFlags, false)
	},
}

func (f *batchFlags) register(cmd *cobra.Command, dryRun bool) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "transfers.csv", "CSV file with TOKEN,TO,AMOUNT rows")
	cmd.Flags().IntVar(&f.decimals, "decimals", -1, "scale every AMOUNT by this many decimals instead of reading decimals() per token")
	if dryRun {
		f.gas.buffer = -1
		cmd.Flags().StringVarP(&f.out, "out", "o", "plan.csv", "where to write the signed plan")
		cmd.Flags().BoolVar(&f.checkHash, "check-hash", true, "compare each SafeTx hash with the Safe's getTransactionHash")
		return
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "results.csv", "where to write per-item results")
	cmd.Flags().StringVar(&f.failed, "failed", "failed.csv", "where to write rows that did not confirm (input format)")
	cmd.Flags().BoolVarP(&f.assumeYes, "yes", "y", false, "do not ask before submitting")
	f.gas.register(cmd)
}

func init() {
	runFlags.register(runCmd, false)
	rootCmd.AddCommand(runCmd)
}

// prepared is a resolved batch ready for the pipeline.
type prepared struct {
	sess      *session
	rows      []transfers.Row
	transfers []safecore.Transfer
	symbols   map[common.Address]string
}

func prepare(ctx context.Context, f batchFlags) (*prepared, error) {
	rows, err := transfers.ReadFile(f.input)
	if err != nil {
		return nil, err
	}
	st := settings
	f.gas.apply(&st)
	sess, err := openSession(ctx, st)
	if err != nil {
		return nil, err
	}
	printConfig(sess)
	printOwners(ctx, sess.client, sess.cfg.Signer)

	res := &transfers.Resolver{Source: sess.client}
	if f.decimals >= 0 {
		d := f.decimals
		res.Override = &d
	}
	txs, err := transfers.Resolve(ctx, rows, res)
	if err != nil {
		sess.close()
		return nil, err
	}
	p := &prepared{sess: sess, rows: rows, transfers: txs, symbols: map[common.Address]string{}}
	p.echo(ctx, res)
	return p, nil
}

// echo prints every parsed transfer before anything is built.
func (p *prepared) echo(ctx context.Context, res *transfers.Resolver) {
	fmt.Printf("\n%d transfer(s) from %s:\n", len(p.transfers), p.sess.cfg.Safe.Hex())
	for i, t := range p.transfers {
		dec, _ := res.Decimals(ctx, t.Token)
		fmt.Printf("  [%d] line %-4d %s %s -> %s\n", i, t.Line,
			transfers.FormatUnits(t.Amount, dec), p.symbol(ctx, t.Token), t.Recipient.Hex())
	}
	fmt.Println()
}

func (p *prepared) symbol(ctx context.Context, token common.Address) string {
	if s, ok := p.symbols[token]; ok {
		return s
	}
	s, err := p.sess.client.TokenSymbol(ctx, token)
	if err != nil || s == "" {
		s = token.Hex()
	}
	p.symbols[token] = s
	return s
}

// checkBalances warns when a token is paused or the Safe holds less of it
// than the batch sends.
func (p *prepared) checkBalances(ctx context.Context) {
	need := map[common.Address]*big.Int{}
	var order []common.Address
	for _, t := range p.transfers {
		if need[t.Token] == nil {
			need[t.Token] = new(big.Int)
			order = append(order, t.Token)
		}
		need[t.Token].Add(need[t.Token], t.Amount)
	}
	for _, token := range order {
		if known, paused := p.sess.client.TokenPaused(ctx, token); known && paused {
			p.sess.log.Warn("token is paused; its transfers will revert", "token", p.symbol(ctx, token))
		}
		bal, err := p.sess.client.TokenBalance(ctx, token, p.sess.cfg.Safe)
		if err != nil {
			p.sess.log.Warn("balance check skipped", "token", token.Hex(), "err", err)
			continue
		}
		if bal.Cmp(need[token]) < 0 {
			p.sess.log.Warn("Safe balance is below the batch total; later items will revert",
				"token", p.symbol(ctx, token), "balance", bal.String(), "needed", need[token].String())
		}
	}
}

func runBatch(parent context.Context, f batchFlags, dryRun bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := prepare(ctx, f)
	if err != nil {
		return err
	}
	defer p.sess.close()

	cfg := p.sess.cfg
	cfg.DryRun = dryRun
	if !dryRun {
		p.checkBalances(ctx)
		if !f.assumeYes && !confirm(fmt.Sprintf("Submit %d execTransaction call(s) on %s?", len(p.transfers), cfg.Network)) {
			return errors.New("aborted by user")
		}
	}

	results, err := safecore.Run(ctx, safecore.Params{
		Config: cfg,
		Chain:  p.sess.client,
		Signer: p.sess.signer,
		Logger: p.sess.log,
		OnResult: func(r safecore.SubmissionResult) {
			p.sess.metrics.ObserveResult(r)
			printResult(r)
		},
	}, p.transfers)
	if err != nil {
		return err
	}

	if dryRun && f.checkHash {
		if err := crossCheckHashes(ctx, p.sess.client, results); err != nil {
			return err
		}
	}
	if err := writeFile(f.out, func(w io.Writer) error { return writeResults(w, results) }); err != nil {
		return err
	}
	sum := safecore.Summarize(results)
	if !dryRun && f.failed != "" {
		if bad := failedRows(p.rows, results); len(bad) > 0 {
			if err := writeFile(f.failed, func(w io.Writer) error { return transfers.Write(w, bad) }); err != nil {
				return err
			}
			fmt.Println("Failed rows =>", f.failed)
		}
	}
	fmt.Printf("Done. total=%d signed=%d confirmed=%d rejected=%d aborted=%d  report => %s\n",
		sum.Total, sum.Signed, sum.Confirmed, sum.Rejected, sum.Aborted, f.out)
	if sum.Failed() {
		return fmt.Errorf("%w: %d of %d", errPartialFailure, sum.Rejected+sum.Aborted, sum.Total)
	}
	return nil
}

func printResult(r safecore.SubmissionResult) {
	switch r.State {
	case safecore.StateConfirmed:
		fmt.Printf("  [%d] nonce %s confirmed  tx=%s gasUsed=%d\n", r.Index, r.Nonce, r.TxHash.Hex(), r.GasUsed)
	case safecore.StateSigned:
		fmt.Printf("  [%d] nonce %s signed     safeTxHash=%s\n", r.Index, r.Nonce, r.SafeTxHash.Hex())
	default:
		reason := ""
		if r.Err != nil {
			reason = r.Err.Error()
			if rr := chain.RevertReason(r.Err); rr != "" {
				reason += " (" + rr + ")"
			}
		}
		fmt.Printf("  [%d] nonce %s %-9s %s: %s\n", r.Index, bigString(r.Nonce), r.State, r.Kind, reason)
	}
}
