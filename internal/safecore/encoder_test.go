package safecore_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

var (
	tokenA = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	rcptA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	rcptB  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestEncodeTransfer(t *testing.T) {
	amount := big.NewInt(1_500_000)
	data, err := safecore.EncodeTransfer(safecore.Transfer{Token: tokenA, Recipient: rcptA, Amount: amount})
	require.NoError(t, err)
	assert.Len(t, data, 68)
	assert.Equal(t, common.FromHex("0xa9059cbb"), data[:4])
	assert.Equal(t, common.LeftPadBytes(rcptA.Bytes(), 32), data[4:36])
	assert.Equal(t, common.LeftPadBytes(amount.Bytes(), 32), data[36:68])

	to, got, err := safecore.DecodeTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, rcptA, to)
	assert.Equal(t, 0, amount.Cmp(got))

	again, err := safecore.EncodeTransfer(safecore.Transfer{Token: tokenA, Recipient: rcptA, Amount: big.NewInt(1_500_000)})
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestEncodeTransferBounds(t *testing.T) {
	data, err := safecore.EncodeTransfer(safecore.Transfer{Recipient: rcptA, Amount: new(big.Int).Set(math.MaxBig256)})
	require.NoError(t, err)
	_, got, err := safecore.DecodeTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, 0, math.MaxBig256.Cmp(got))

	zero, err := safecore.EncodeTransfer(safecore.Transfer{Recipient: rcptA, Amount: new(big.Int)})
	require.NoError(t, err)
	assert.Len(t, zero, 68)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	for name, amt := range map[string]*big.Int{
		"overflow": tooBig,
		"negative": big.NewInt(-1),
		"nil":      nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := safecore.EncodeTransfer(safecore.Transfer{Recipient: rcptA, Amount: amt})
			assert.ErrorIs(t, err, safecore.ErrEncoding)
		})
	}
}

func TestDecodeTransferRejectsOtherSelectors(t *testing.T) {
	_, _, err := safecore.DecodeTransfer(common.FromHex("0x095ea7b3"))
	assert.ErrorIs(t, err, safecore.ErrEncoding)
	_, _, err = safecore.DecodeTransfer(nil)
	assert.ErrorIs(t, err, safecore.ErrEncoding)
}

func TestBuildSafeTransaction(t *testing.T) {
	tr := safecore.Transfer{Token: tokenA, Recipient: rcptB, Amount: big.NewInt(42)}
	tx, err := safecore.BuildSafeTransaction(tr, big.NewInt(9))
	require.NoError(t, err)

	data, err := safecore.EncodeTransfer(tr)
	require.NoError(t, err)
	assert.Equal(t, tokenA, tx.To)
	assert.Equal(t, int64(0), tx.Value.Int64())
	assert.Equal(t, data, tx.Data)
	assert.Equal(t, safecore.Call, tx.Operation)
	assert.Zero(t, tx.SafeTxGas.Sign())
	assert.Zero(t, tx.BaseGas.Sign())
	assert.Zero(t, tx.GasPrice.Sign())
	assert.Equal(t, common.Address{}, tx.GasToken)
	assert.Equal(t, common.Address{}, tx.RefundReceiver)
	assert.Equal(t, int64(9), tx.Nonce.Int64())

	_, err = safecore.BuildSafeTransaction(safecore.Transfer{Token: tokenA, Recipient: rcptB, Amount: big.NewInt(-5)}, big.NewInt(1))
	assert.ErrorIs(t, err, safecore.ErrEncoding)
	_, err = safecore.BuildSafeTransaction(tr, nil)
	assert.ErrorIs(t, err, safecore.ErrEncoding)
}

func TestSequenceNonces(t *testing.T) {
	got := safecore.SequenceNonces(big.NewInt(5), 3)
	require.Len(t, got, 3)
	for i, n := range got {
		assert.Equal(t, int64(5+i), n.Int64())
	}
	assert.Empty(t, safecore.SequenceNonces(big.NewInt(5), 0))

	start := big.NewInt(7)
	seq := safecore.SequenceNonces(start, 2)
	seq[0].SetInt64(100)
	assert.Equal(t, int64(7), start.Int64())
}
