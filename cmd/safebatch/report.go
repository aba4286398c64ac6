package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/safe-batch/internal/safecore"
	"github.com/ligun0805/safe-batch/internal/transfers"
)

var reportHeader = []string{
	"index", "line", "token", "to", "amount_base", "nonce", "state",
	"safe_tx_hash", "tx_hash", "gas_limit", "gas_used", "error_kind", "error",
}

func writeResults(w io.Writer, results []safecore.SubmissionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			strconv.Itoa(r.Index),
			strconv.Itoa(r.Transfer.Line),
			r.Transfer.Token.Hex(),
			r.Transfer.Recipient.Hex(),
			bigString(r.Transfer.Amount),
			bigString(r.Nonce),
			r.State.String(),
			"", "",
			strconv.FormatUint(r.GasLimit, 10),
			strconv.FormatUint(r.GasUsed, 10),
			string(r.Kind),
			"",
		}
		if r.SafeTxHash != (common.Hash{}) {
			rec[7] = r.SafeTxHash.Hex()
		}
		if r.TxHash != nil {
			rec[8] = r.TxHash.Hex()
		}
		if r.Err != nil {
			rec[12] = r.Err.Error()
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// failedRows returns the input rows of every item that did not confirm, in
// input format, so they can be run again as a fresh batch.
func failedRows(rows []transfers.Row, results []safecore.SubmissionResult) []transfers.Row {
	byLine := make(map[int]transfers.Row, len(rows))
	for _, r := range rows {
		byLine[r.Line] = r
	}
	var out []transfers.Row
	for _, r := range results {
		if r.State != safecore.StateRejected && r.State != safecore.StateAborted {
			continue
		}
		if row, ok := byLine[r.Transfer.Line]; ok {
			out = append(out, row)
		}
	}
	return out
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func bigString(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.String()
}
