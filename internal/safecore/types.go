package safecore

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the Safe call type.
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

// Transfer is one parsed input row: send Amount base units of Token to Recipient.
type Transfer struct {
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
	Line      int // source line, 0 when not read from a file
}

// SafeTransaction holds exactly the fields covered by the SafeTx EIP-712 hash.
type SafeTransaction struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// Signature is r||s||v with v in {27, 28}.
type Signature []byte

// SignedTransaction pairs a Safe transaction with its owner signature.
type SignedTransaction struct {
	Index     int
	Transfer  Transfer
	Tx        *SafeTransaction
	Hash      common.Hash
	Signer    common.Address
	Signature Signature
}

// State is the per-item lifecycle position.
type State int

const (
	StateBuilt State = iota
	StateSigned
	StateSubmitted
	StateConfirmed
	StateRejected
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateConfirmed || s == StateRejected || s == StateAborted
}

// SubmissionResult is the outcome of one batch item.
type SubmissionResult struct {
	Index      int
	Transfer   Transfer
	Nonce      *big.Int
	SafeTxHash common.Hash
	State      State
	Success    bool
	TxHash     *common.Hash
	GasLimit   uint64
	GasUsed    uint64
	Kind       ErrorKind
	Err        error
	Elapsed    time.Duration
}

// Receipt is the subset of a mined receipt the pipeline needs.
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber *big.Int
	GasUsed     uint64
}

// Summary counts results per state. Signed only appears on dry runs.
type Summary struct {
	Total     int
	Signed    int
	Confirmed int
	Rejected  int
	Aborted   int
}

func Summarize(results []SubmissionResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.State {
		case StateConfirmed:
			s.Confirmed++
		case StateRejected:
			s.Rejected++
		case StateSigned:
			s.Signed++
		default:
			s.Aborted++
		}
	}
	return s
}

// Failed reports whether any item was rejected or never sent.
func (s Summary) Failed() bool { return s.Rejected+s.Aborted > 0 }
