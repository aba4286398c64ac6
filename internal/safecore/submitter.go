package safecore

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultCallTimeout    = 30 * time.Second
	DefaultReceiptTimeout = 3 * time.Minute
)

type SubmitterOptions struct {
	Gas            GasPolicy
	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
	Logger         *slog.Logger
	OnResult       func(SubmissionResult)
}

// Submitter executes signed Safe transactions one at a time, in order.
// A failed item is recorded and the next one is still attempted.
type Submitter struct {
	cc   ChainClient
	opts SubmitterOptions
	log  *slog.Logger

	mu        sync.Mutex
	confirmed map[string]bool // Safe nonces this submitter executed
}

func NewSubmitter(cc ChainClient, opts SubmitterOptions) *Submitter {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if opts.Gas.Strategy == "" {
		opts.Gas.Strategy = GasQuery
	}
	return &Submitter{cc: cc, opts: opts, log: loggerOr(opts.Logger), confirmed: map[string]bool{}}
}

// Submit drains items through a single worker and returns one result per item,
// in input order.
func (s *Submitter) Submit(ctx context.Context, items []SignedTransaction) []SubmissionResult {
	queue := make(chan SignedTransaction, len(items))
	for _, it := range items {
		queue <- it
	}
	close(queue)

	out := make([]SubmissionResult, 0, len(items))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for it := range queue {
			res := s.SubmitOne(ctx, it)
			out = append(out, res)
			if s.opts.OnResult != nil {
				s.opts.OnResult(res)
			}
		}
	}()
	<-done
	return out
}

// SubmitOne runs gas selection, execTransaction and the receipt wait for one item.
func (s *Submitter) SubmitOne(ctx context.Context, it SignedTransaction) SubmissionResult {
	start := time.Now()
	res := SubmissionResult{
		Index:      it.Index,
		Transfer:   it.Transfer,
		SafeTxHash: it.Hash,
		State:      StateSigned,
	}
	if it.Tx != nil {
		res.Nonce = new(big.Int).Set(bigOrZero(it.Tx.Nonce))
	}
	finish := func(st State, err error) SubmissionResult {
		res.State = st
		res.Err = err
		res.Kind = KindOf(err)
		res.Success = st == StateConfirmed
		res.Elapsed = time.Since(start)
		return res
	}

	if it.Tx == nil || len(it.Signature) != 65 {
		return finish(StateAborted, fmt.Errorf("%w: item %d is not signed", ErrSigning, it.Index))
	}
	if err := ctx.Err(); err != nil {
		return finish(StateAborted, err)
	}

	lg := s.log.With("item", it.Index, "nonce", res.Nonce.String(), "token", it.Tx.To.Hex())
	call := ExecCall{Tx: it.Tx, Signatures: it.Signature}
	res.State = StateSubmitted

	gas, err := s.gasLimit(ctx, call)
	if err != nil {
		lg.Warn("gas estimate failed", "err", err)
		return finish(StateRejected, s.diagnose(ctx, it, callError("estimate execTransaction", err)))
	}
	res.GasLimit = gas

	txHash, err := s.exec(ctx, call, gas)
	if err != nil {
		lg.Warn("execTransaction send failed", "err", err)
		return finish(StateRejected, s.diagnose(ctx, it, callError("send execTransaction", err)))
	}
	res.TxHash = &txHash
	lg.Info("execTransaction sent", "tx", txHash.Hex(), "gas", gas)

	rcpt, err := s.waitReceipt(ctx, txHash)
	if err != nil {
		lg.Warn("receipt wait failed", "tx", txHash.Hex(), "err", err)
		return finish(StateRejected, callError("wait receipt", err))
	}
	res.GasUsed = rcpt.GasUsed
	if !rcpt.Success {
		lg.Warn("execTransaction reverted", "tx", txHash.Hex(), "block", rcpt.BlockNumber)
		return finish(StateRejected, s.diagnose(ctx, it, fmt.Errorf("%w: tx %s reverted", ErrSubmission, txHash.Hex())))
	}
	lg.Info("confirmed", "tx", txHash.Hex(), "block", rcpt.BlockNumber, "gasUsed", rcpt.GasUsed)
	s.markConfirmed(it.Tx.Nonce)
	return finish(StateConfirmed, nil)
}

func (s *Submitter) gasLimit(ctx context.Context, call ExecCall) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.opts.Gas.GasLimit(cctx, s.cc, call)
}

func (s *Submitter) exec(ctx context.Context, call ExecCall, gas uint64) (common.Hash, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.cc.Exec(cctx, call, gas)
}

func (s *Submitter) waitReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()
	return s.cc.WaitReceipt(cctx, txHash)
}

func (s *Submitter) markConfirmed(n *big.Int) {
	s.mu.Lock()
	s.confirmed[n.String()] = true
	s.mu.Unlock()
}

func (s *Submitter) executedHere(n *big.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[n.String()]
}

// diagnose re-reads the Safe nonce once. If it already moved past the item's
// nonce because of someone else's transaction, the failure is a nonce race
// rather than a plain rejection.
func (s *Submitter) diagnose(ctx context.Context, it SignedTransaction, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	n, err := s.cc.SafeNonce(cctx)
	if err != nil {
		s.log.Debug("nonce re-read failed", "item", it.Index, "err", err)
		return cause
	}
	if n.Cmp(it.Tx.Nonce) <= 0 {
		return cause
	}
	if s.executedHere(it.Tx.Nonce) {
		return fmt.Errorf("%w: nonce %s was already executed by this run: %w", ErrSubmission, it.Tx.Nonce, cause)
	}
	return fmt.Errorf("%w: %w: safe nonce is %s, item signed for %s: %w", ErrSubmission, ErrNonceRace, n, it.Tx.Nonce, cause)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
