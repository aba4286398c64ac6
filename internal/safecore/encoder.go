package safecore

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// TransferSelector is keccak256("transfer(address,uint256)")[:4].
var TransferSelector = common.FromHex("0xa9059cbb")

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(err)
	}
}

// EncodeTransfer builds the ERC20 transfer(recipient, amount) calldata.
func EncodeTransfer(t Transfer) ([]byte, error) {
	if t.Amount == nil {
		return nil, fmt.Errorf("%w: amount is nil", ErrEncoding)
	}
	if t.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %s", ErrEncoding, t.Amount)
	}
	if _, overflow := uint256.FromBig(t.Amount); overflow {
		return nil, fmt.Errorf("%w: amount exceeds 256 bits", ErrEncoding)
	}
	data, err := erc20ABI.Pack("transfer", t.Recipient, new(big.Int).Set(t.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return data, nil
}

// DecodeTransfer is the inverse of EncodeTransfer.
func DecodeTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], TransferSelector) {
		return common.Address{}, nil, fmt.Errorf("%w: not a transfer call", ErrEncoding)
	}
	vals, err := erc20ABI.Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	to, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: recipient type %T", ErrEncoding, vals[0])
	}
	amount, ok := vals[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: amount type %T", ErrEncoding, vals[1])
	}
	return to, amount, nil
}
