package main

import (
	"fmt"

	"github.com/ligun0805/safe-batch/internal/config"
	"github.com/ligun0805/safe-batch/internal/logging"
)

func printConfig(s *session) {
	st := s.st
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("NETWORK            :", st.Network)
	fmt.Println("RPC_URL            :", maskURL(st.RPCURL))
	fmt.Println("CHAIN_ID           :", s.cfg.ChainID.String())
	fmt.Println("SAFE_ADDRESS       :", s.cfg.Safe.Hex())
	fmt.Println("  -> Safe version  :", s.version)
	fmt.Println("SIGNER_ADDRESS     :", s.cfg.Signer.Hex())
	fmt.Println(secretLine(st))
	fmt.Println("Gas policy         :", s.cfg.Gas.String())
	if st.GasOracleURL != "" {
		fmt.Println("Gas oracle         :", st.GasOracleURL, "("+st.GasOracleSpeed+")")
	} else {
		fmt.Println("Tip (gwei)         :", st.TipGwei)
	}
	fmt.Println("BaseFeeMul         :", st.BasefeeMul)
	fmt.Println("Call/receipt limit :", s.cfg.CallTimeout, "/", s.cfg.ReceiptTimeout)
	fmt.Println("=====================")
}

// secretLine names where the key came from without printing any of it.
func secretLine(st config.Settings) string {
	switch {
	case st.SignerKeyHex != "":
		return "SIGNER_PRIVATE_KEY : ***"
	case st.SignerMnemonic != "":
		return "SIGNER_MNEMONIC    : *** (" + hdPathOrDefault(st.SignerHDPath) + ")"
	}
	return "SIGNER_PRIVATE_KEY : *** (prompted)"
}

func hdPathOrDefault(p string) string {
	if p == "" {
		return "m/44'/60'/0'/0/0"
	}
	return p
}

// maskURL hides provider API keys, which usually sit in the last path segment.
func maskURL(u string) string {
	if len(u) <= 24 {
		return u
	}
	for i := len(u) - 1; i > 8; i-- {
		if u[i] == '/' {
			tail := u[i+1:]
			if len(tail) >= 16 {
				return u[:i+1] + logging.MaskHex(tail)
			}
			break
		}
	}
	return u
}
