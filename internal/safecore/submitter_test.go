package safecore_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

func testConfig(signer common.Address) safecore.Config {
	return safecore.Config{
		Network:        "polygon",
		ChainID:        testChain,
		Safe:           testSafe,
		Signer:         signer,
		Gas:            safecore.GasPolicy{Strategy: safecore.GasFixed, Limit: 200_000},
		CallTimeout:    time.Second,
		ReceiptTimeout: time.Second,
	}
}

func testTransfers(n int) []safecore.Transfer {
	out := make([]safecore.Transfer, n)
	for i := range out {
		out[i] = safecore.Transfer{Token: tokenA, Recipient: rcptA, Amount: big.NewInt(int64(1000 * (i + 1))), Line: i + 2}
	}
	return out
}

func newTestSigner(t *testing.T) *safecore.Signer {
	t.Helper()
	cred := mustCred(t, ownerKeyHex)
	s, err := safecore.NewSigner(cred, cred.Address(), testDomain())
	require.NoError(t, err)
	return s
}

func TestRunConfirmsInOrder(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 5, s.Address())

	var seen []int
	res, err := safecore.Run(context.Background(), safecore.Params{
		Config:   testConfig(s.Address()),
		Chain:    safe,
		Signer:   s,
		OnResult: func(r safecore.SubmissionResult) { seen = append(seen, r.Index) },
	}, testTransfers(3))
	require.NoError(t, err)
	require.Len(t, res, 3)

	for i, r := range res {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, safecore.StateConfirmed, r.State)
		assert.True(t, r.Success)
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.TxHash)
		assert.Equal(t, int64(5+i), r.Nonce.Int64())
		assert.Equal(t, uint64(200_000), r.GasLimit)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, []uint64{5, 6, 7}, safe.execNonces())
	assert.Equal(t, int64(8), safe.nonce.Int64())
}

func TestRunEndToEndSingleTransfer(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 5, s.Address())
	oneToken, _ := new(big.Int).SetString("1000000000000000000", 10)

	var sent *safecore.SafeTransaction
	spy := &spyChain{fakeSafe: safe, onExec: func(c safecore.ExecCall) { sent = c.Tx }}
	res, err := safecore.Run(context.Background(), safecore.Params{
		Config: testConfig(s.Address()),
		Chain:  spy,
		Signer: s,
	}, []safecore.Transfer{{Token: tokenA, Recipient: rcptB, Amount: oneToken}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, safecore.StateConfirmed, res[0].State)

	require.NotNil(t, sent)
	assert.Equal(t, int64(5), sent.Nonce.Int64())
	assert.Equal(t, tokenA, sent.To)
	to, amt, err := safecore.DecodeTransfer(sent.Data)
	require.NoError(t, err)
	assert.Equal(t, rcptB, to)
	assert.Equal(t, "1000000000000000000", amt.String())
}

func TestRunContinuesAfterFailure(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 5, s.Address())
	safe.revertAt[6] = true

	res, err := safecore.Run(context.Background(), safecore.Params{
		Config: testConfig(s.Address()),
		Chain:  safe,
		Signer: s,
	}, testTransfers(3))
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, safecore.StateConfirmed, res[0].State)
	assert.Equal(t, safecore.StateRejected, res[1].State)
	assert.ErrorIs(t, res[1].Err, safecore.ErrSubmission)
	assert.NotNil(t, res[1].TxHash)
	assert.True(t, res[2].State.Final())
	assert.NotEqual(t, safecore.StateAborted, res[2].State)
	assert.Equal(t, []uint64{5, 6, 7}, safe.execNonces())

	sum := safecore.Summarize(res)
	assert.Equal(t, 1, sum.Confirmed)
	assert.True(t, sum.Failed())
}

func TestRunSkipsUnencodableWithoutNonceGap(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 10, s.Address())
	trs := testTransfers(3)
	trs[1].Amount = big.NewInt(-1)

	res, err := safecore.Run(context.Background(), safecore.Params{
		Config: testConfig(s.Address()),
		Chain:  safe,
		Signer: s,
	}, trs)
	require.NoError(t, err)

	assert.Equal(t, safecore.StateAborted, res[1].State)
	assert.Equal(t, safecore.KindEncoding, res[1].Kind)
	assert.Nil(t, res[1].TxHash)
	assert.Equal(t, int64(10), res[0].Nonce.Int64())
	assert.Equal(t, int64(11), res[2].Nonce.Int64())
	assert.Equal(t, safecore.StateConfirmed, res[2].State)
	assert.Equal(t, []uint64{10, 11}, safe.execNonces())
}

func TestRunDryRunSendsNothing(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 3, s.Address())
	cfg := testConfig(s.Address())
	cfg.DryRun = true

	res, err := safecore.Run(context.Background(), safecore.Params{Config: cfg, Chain: safe, Signer: s}, testTransfers(2))
	require.NoError(t, err)
	for i, r := range res {
		assert.Equal(t, safecore.StateSigned, r.State)
		assert.Equal(t, int64(3+i), r.Nonce.Int64())
		assert.NotEqual(t, common.Hash{}, r.SafeTxHash)
	}
	assert.Empty(t, safe.execNonces())
	sum := safecore.Summarize(res)
	assert.Equal(t, 2, sum.Signed)
	assert.False(t, sum.Failed())
}

func TestRunRejectsMismatchedSigner(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 0, s.Address())
	cfg := testConfig(common.HexToAddress("0x9999999999999999999999999999999999999999"))

	_, err := safecore.Run(context.Background(), safecore.Params{Config: cfg, Chain: safe, Signer: s}, testTransfers(1))
	assert.ErrorIs(t, err, safecore.ErrSigning)
	assert.Empty(t, safe.execNonces())
}

func TestSubmitQueryGasPolicyRejectsOnEstimate(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 0, s.Address())
	safe.revertAt[0] = true
	cfg := testConfig(s.Address())
	cfg.Gas = safecore.GasPolicy{Strategy: safecore.GasQuery, BufferPct: 20}

	res, err := safecore.Run(context.Background(), safecore.Params{Config: cfg, Chain: safe, Signer: s}, testTransfers(1))
	require.NoError(t, err)
	assert.Equal(t, safecore.StateRejected, res[0].State)
	assert.Equal(t, safecore.KindSubmission, res[0].Kind)
	assert.Nil(t, res[0].TxHash)
	assert.Empty(t, safe.execNonces())
}

func TestSubmitTimeout(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 0, s.Address())
	safe.hang = true
	cfg := testConfig(s.Address())
	cfg.CallTimeout = 50 * time.Millisecond

	res, err := safecore.Run(context.Background(), safecore.Params{Config: cfg, Chain: safe, Signer: s}, testTransfers(2))
	require.NoError(t, err)
	for _, r := range res {
		assert.Equal(t, safecore.StateRejected, r.State)
		assert.ErrorIs(t, r.Err, safecore.ErrTimeout)
		assert.Equal(t, safecore.KindTimeout, r.Kind)
	}
}

func TestResubmittingConfirmedItemIsRejected(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 5, s.Address())
	tx, err := safecore.BuildSafeTransaction(testTransfers(1)[0], big.NewInt(5))
	require.NoError(t, err)
	sig, err := s.Sign(tx)
	require.NoError(t, err)
	item := safecore.SignedTransaction{Tx: tx, Signature: sig}

	sub := safecore.NewSubmitter(safe, safecore.SubmitterOptions{Gas: safecore.GasPolicy{Strategy: safecore.GasFixed, Limit: 100_000}})
	first := sub.SubmitOne(context.Background(), item)
	require.Equal(t, safecore.StateConfirmed, first.State)

	second := sub.SubmitOne(context.Background(), item)
	assert.Equal(t, safecore.StateRejected, second.State)
	assert.ErrorIs(t, second.Err, safecore.ErrSubmission)
	assert.NotErrorIs(t, second.Err, safecore.ErrNonceRace)
	assert.Equal(t, safecore.KindSubmission, second.Kind)
	assert.Equal(t, int64(6), safe.nonce.Int64())
}

func TestExternalExecutionIsNonceRace(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 5, s.Address())
	tx, err := safecore.BuildSafeTransaction(testTransfers(1)[0], big.NewInt(5))
	require.NoError(t, err)
	sig, err := s.Sign(tx)
	require.NoError(t, err)

	// another owner's transaction consumed nonce 5
	safe.nonce.SetInt64(6)

	sub := safecore.NewSubmitter(safe, safecore.SubmitterOptions{Gas: safecore.GasPolicy{Strategy: safecore.GasFixed, Limit: 100_000}})
	res := sub.SubmitOne(context.Background(), safecore.SignedTransaction{Tx: tx, Signature: sig})
	assert.Equal(t, safecore.StateRejected, res.State)
	assert.ErrorIs(t, res.Err, safecore.ErrSubmission)
	assert.ErrorIs(t, res.Err, safecore.ErrNonceRace)
	assert.Equal(t, safecore.KindNonceRace, res.Kind)
}

func TestSubmitRefusesUnsigned(t *testing.T) {
	safe := newFakeSafe(testDomain(), 0)
	tx, err := safecore.BuildSafeTransaction(testTransfers(1)[0], big.NewInt(0))
	require.NoError(t, err)

	sub := safecore.NewSubmitter(safe, safecore.SubmitterOptions{})
	res := sub.SubmitOne(context.Background(), safecore.SignedTransaction{Tx: tx})
	assert.Equal(t, safecore.StateAborted, res.State)
	assert.ErrorIs(t, res.Err, safecore.ErrSigning)
	assert.Empty(t, safe.execNonces())
}

func TestSubmitStopsOnCancel(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 0, s.Address())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := safecore.Run(ctx, safecore.Params{Config: testConfig(s.Address()), Chain: safe, Signer: s}, testTransfers(2))
	require.NoError(t, err)
	for _, r := range res {
		assert.Equal(t, safecore.StateAborted, r.State)
		assert.Equal(t, safecore.KindCanceled, r.Kind)
	}
	assert.Empty(t, safe.execNonces())
}

func TestGasPolicy(t *testing.T) {
	s := newTestSigner(t)
	safe := newFakeSafe(testDomain(), 0, s.Address())
	tx, _ := safecore.BuildSafeTransaction(testTransfers(1)[0], big.NewInt(0))
	sig, _ := s.Sign(tx)
	call := safecore.ExecCall{Tx: tx, Signatures: sig}

	g, err := safecore.GasPolicy{Strategy: safecore.GasQuery, BufferPct: 25}.GasLimit(context.Background(), safe, call)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), g)

	g, err = safecore.GasPolicy{Strategy: safecore.GasQuery, BufferPct: 25, Limit: 90_000}.GasLimit(context.Background(), safe, call)
	require.NoError(t, err)
	assert.Equal(t, uint64(90_000), g)

	g, err = safecore.GasPolicy{Strategy: safecore.GasFixed, Limit: 123}.GasLimit(context.Background(), safe, call)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), g)

	assert.ErrorIs(t, safecore.GasPolicy{Strategy: safecore.GasFixed}.Validate(), safecore.ErrConfig)
	_, err = safecore.ParseGasStrategy("turbo")
	assert.ErrorIs(t, err, safecore.ErrConfig)
	st, err := safecore.ParseGasStrategy("")
	require.NoError(t, err)
	assert.Equal(t, safecore.GasQuery, st)
}

type spyChain struct {
	*fakeSafe
	onExec func(safecore.ExecCall)
}

func (s *spyChain) Exec(ctx context.Context, call safecore.ExecCall, gasLimit uint64) (common.Hash, error) {
	s.onExec(call)
	return s.fakeSafe.Exec(ctx, call, gasLimit)
}
