package safecore

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

type Params struct {
	Config Config
	Chain  ChainClient
	Signer *Signer
	Logger *slog.Logger
	// OnResult fires once per item as soon as its outcome is final
	// (or signed, on a dry run).
	OnResult func(SubmissionResult)
}

// Run executes a batch: one nonce read, build, sign, then ordered submission.
// The returned slice has one result per transfer, in batch order. An error is
// returned only for failures that stop the run before any item is sent.
func Run(ctx context.Context, p Params, transfers []Transfer) ([]SubmissionResult, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if p.Chain == nil {
		return nil, fmt.Errorf("%w: no chain client", ErrConfig)
	}
	if p.Signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrSigning)
	}
	if p.Signer.Address() != p.Config.Signer {
		return nil, fmt.Errorf("%w: signer %s is not the configured signer %s", ErrSigning, p.Signer.Address().Hex(), p.Config.Signer.Hex())
	}
	if d := p.Signer.Domain(); d.Safe != p.Config.Safe {
		return nil, fmt.Errorf("%w: signer domain is bound to %s, not %s", ErrConfig, d.Safe.Hex(), p.Config.Safe.Hex())
	}
	lg := loggerOr(p.Logger)
	results := make([]SubmissionResult, len(transfers))
	emit := func(r SubmissionResult) {
		results[r.Index] = r
		if p.OnResult != nil {
			p.OnResult(r)
		}
	}
	if len(transfers) == 0 {
		return results, nil
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout(p.Config))
	start, err := p.Chain.SafeNonce(cctx)
	cancel()
	if err != nil {
		return nil, callError("read safe nonce", err)
	}
	lg.Info("batch start", "safe", p.Config.Safe.Hex(), "nonce", start.String(), "items", len(transfers))

	built := buildAll(transfers, start, lg, emit)
	signed := signAll(built, p.Signer, lg, emit)

	if p.Config.DryRun {
		for _, it := range signed {
			emit(SubmissionResult{
				Index:      it.Index,
				Transfer:   it.Transfer,
				Nonce:      new(big.Int).Set(it.Tx.Nonce),
				SafeTxHash: it.Hash,
				State:      StateSigned,
			})
		}
		lg.Info("dry run, nothing submitted", "signed", len(signed))
		return results, nil
	}

	sub := NewSubmitter(p.Chain, SubmitterOptions{
		Gas:            p.Config.Gas,
		CallTimeout:    p.Config.CallTimeout,
		ReceiptTimeout: p.Config.ReceiptTimeout,
		Logger:         lg,
		OnResult:       emit,
	})
	sub.Submit(ctx, signed)
	return results, nil
}

type builtItem struct {
	index    int
	transfer Transfer
	tx       *SafeTransaction
}

// buildAll encodes every transfer first so only encodable ones consume a nonce.
func buildAll(transfers []Transfer, start *big.Int, lg *slog.Logger, emit func(SubmissionResult)) []builtItem {
	ok := make([]int, 0, len(transfers))
	for i, t := range transfers {
		if _, err := EncodeTransfer(t); err != nil {
			lg.Warn("transfer not encodable", "item", i, "line", t.Line, "err", err)
			emit(SubmissionResult{Index: i, Transfer: t, State: StateAborted, Err: err, Kind: KindOf(err)})
			continue
		}
		ok = append(ok, i)
	}
	nonces := SequenceNonces(start, len(ok))
	out := make([]builtItem, 0, len(ok))
	for k, i := range ok {
		tx, err := BuildSafeTransaction(transfers[i], nonces[k])
		if err != nil {
			// unreachable once EncodeTransfer passed; keeps the nonce gap visible if it happens
			emit(SubmissionResult{Index: i, Transfer: transfers[i], Nonce: nonces[k], State: StateAborted, Err: err, Kind: KindOf(err)})
			continue
		}
		lg.Debug("built", "item", i, "nonce", nonces[k].String(), "token", tx.To.Hex(), "to", transfers[i].Recipient.Hex(), "amount", transfers[i].Amount.String())
		out = append(out, builtItem{index: i, transfer: transfers[i], tx: tx})
	}
	return out
}

func signAll(items []builtItem, s *Signer, lg *slog.Logger, emit func(SubmissionResult)) []SignedTransaction {
	out := make([]SignedTransaction, 0, len(items))
	for _, it := range items {
		h, err := SafeTxHash(it.tx, s.Domain())
		var sig Signature
		if err == nil {
			sig, err = s.SignHash(h)
		}
		if err != nil {
			lg.Warn("signing failed", "item", it.index, "err", err)
			emit(SubmissionResult{Index: it.index, Transfer: it.transfer, Nonce: new(big.Int).Set(it.tx.Nonce), State: StateAborted, Err: err, Kind: KindOf(err)})
			continue
		}
		out = append(out, SignedTransaction{
			Index:     it.index,
			Transfer:  it.transfer,
			Tx:        it.tx,
			Hash:      h,
			Signer:    s.Address(),
			Signature: sig,
		})
	}
	return out
}

func callTimeout(c Config) time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return DefaultCallTimeout
}
