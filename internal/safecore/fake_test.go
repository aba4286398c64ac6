package safecore_test

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

// fakeSafe behaves like a single-threshold Safe: it accepts a call only when
// the signature recovers to an owner over the hash for its current nonce.
type fakeSafe struct {
	mu       sync.Mutex
	domain   safecore.Domain
	owners   map[common.Address]bool
	nonce    *big.Int
	revertAt map[uint64]bool // inner call fails at these nonces
	hang     bool            // Exec blocks until ctx is done
	execs    []uint64
	receipts map[common.Hash]*safecore.Receipt
	seq      int64
}

func newFakeSafe(d safecore.Domain, nonce int64, owners ...common.Address) *fakeSafe {
	f := &fakeSafe{
		domain:   d,
		owners:   map[common.Address]bool{},
		nonce:    big.NewInt(nonce),
		revertAt: map[uint64]bool{},
		receipts: map[common.Hash]*safecore.Receipt{},
	}
	for _, o := range owners {
		f.owners[o] = true
	}
	return f
}

var errGS026 = errors.New("execution reverted: GS026")

func (f *fakeSafe) check(call safecore.ExecCall) error {
	if call.Tx.Nonce.Cmp(f.nonce) != 0 {
		return errGS026
	}
	h, err := safecore.SafeTxHash(call.Tx, f.domain)
	if err != nil {
		return err
	}
	signer, err := safecore.RecoverSigner(h, call.Signatures)
	if err != nil || !f.owners[signer] {
		return errGS026
	}
	return nil
}

func (f *fakeSafe) SafeNonce(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.nonce), nil
}

func (f *fakeSafe) EstimateExec(ctx context.Context, call safecore.ExecCall) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(call); err != nil {
		return 0, err
	}
	if f.revertAt[call.Tx.Nonce.Uint64()] {
		return 0, errors.New("execution reverted: GS013")
	}
	return 80_000, nil
}

func (f *fakeSafe) Exec(ctx context.Context, call safecore.ExecCall, gasLimit uint64) (common.Hash, error) {
	if f.hang {
		<-ctx.Done()
		return common.Hash{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, call.Tx.Nonce.Uint64())
	if err := f.check(call); err != nil {
		return common.Hash{}, err
	}
	f.seq++
	h := crypto.Keccak256Hash(big.NewInt(f.seq).Bytes())
	ok := !f.revertAt[call.Tx.Nonce.Uint64()]
	if ok {
		f.nonce.Add(f.nonce, big.NewInt(1))
	}
	f.receipts[h] = &safecore.Receipt{TxHash: h, Success: ok, BlockNumber: big.NewInt(100 + f.seq), GasUsed: 60_000}
	return h, nil
}

func (f *fakeSafe) WaitReceipt(ctx context.Context, txHash common.Hash) (*safecore.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	return r, nil
}

func (f *fakeSafe) execNonces() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.execs...)
}
