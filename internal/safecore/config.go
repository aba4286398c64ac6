package safecore

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the validated, read-only run configuration handed to the pipeline.
type Config struct {
	Network        string
	ChainID        *big.Int
	Safe           common.Address
	Signer         common.Address
	Gas            GasPolicy
	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
	// DryRun stops after signing.
	DryRun bool
}

func (c Config) Validate() error {
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: chain id is not set", ErrConfig)
	}
	if c.Safe == (common.Address{}) {
		return fmt.Errorf("%w: safe address is not set", ErrConfig)
	}
	if c.Signer == (common.Address{}) {
		return fmt.Errorf("%w: signer address is not set", ErrConfig)
	}
	return c.Gas.Validate()
}
