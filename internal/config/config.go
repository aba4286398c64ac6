package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

// Settings keeps all configuration options as read from the environment.
// Network-scoped keys (POLYGON_API_URL, SAFE_ADDRESS_POLYGON) win over the
// plain ones.
type Settings struct {
	Network        string
	RPCURL         string
	ChainID        string
	SafeAddress    string
	SignerAddress  string
	SignerKeyHex   string
	SignerMnemonic string
	SignerHDPath   string

	GasPolicy      string
	GasLimit       uint64
	GasBufferPct   int64
	GasOracleURL   string
	GasOracleSpeed string
	TipGwei        int64
	BasefeeMul     int64

	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration

	LogLevel       string
	PushgatewayURL string
}

// knownChains fills CHAIN_ID for common network names.
var knownChains = map[string]int64{
	"mainnet":  1,
	"ethereum": 1,
	"sepolia":  11155111,
	"polygon":  137,
	"matic":    137,
	"amoy":     80002,
	"base":     8453,
	"arbitrum": 42161,
	"optimism": 10,
}

var gasStations = map[string]string{
	"polygon": "https://gasstation.polygon.technology/v2",
	"matic":   "https://gasstation.polygon.technology/v2",
	"amoy":    "https://gasstation.polygon.technology/amoy",
}

// LoadDotEnv reads .env and lets .env.local override it. Missing files are fine.
func LoadDotEnv() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return def
	}
	getUint64 := func(keys []string, def uint64) uint64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64); err == nil {
			return n
		}
		return def
	}
	getMillis := func(keys []string, def time.Duration) time.Duration {
		n := getInt64(keys, 0)
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Millisecond
	}

	st := Settings{}
	st.Network = strings.ToLower(get([]string{"network", "NETWORK"}, "polygon"))
	net := strings.ToUpper(st.Network)

	st.RPCURL = get([]string{net + "_API_URL", net + "_RPC_URL", "rpc_url", "RPC_URL"}, "")
	st.ChainID = get([]string{"chain_id", "CHAIN_ID"}, "")
	if st.ChainID == "" {
		if id, ok := knownChains[st.Network]; ok {
			st.ChainID = strconv.FormatInt(id, 10)
		}
	}
	st.SafeAddress = get([]string{"SAFE_ADDRESS_" + net, "safe_address", "SAFE_ADDRESS"}, "")
	st.SignerAddress = get([]string{"signer_address", "SIGNER_ADDRESS"}, "")
	st.SignerKeyHex = get([]string{"signer_private_key", "SIGNER_PRIVATE_KEY"}, "")
	st.SignerMnemonic = get([]string{"signer_mnemonic", "SIGNER_MNEMONIC"}, "")
	st.SignerHDPath = get([]string{"signer_hd_path", "SIGNER_HD_PATH"}, "")

	st.GasPolicy = get([]string{"gas_policy", "GAS_POLICY"}, string(safecore.GasQuery))
	st.GasLimit = getUint64([]string{"gas_limit", "GAS_LIMIT"}, 0)
	st.GasBufferPct = getInt64([]string{"gas_buffer_pct", "GAS_BUFFER_PCT", "BUFFER_PCT"}, 20)
	st.GasOracleURL = get([]string{"gas_oracle_url", "GAS_ORACLE_URL"}, gasStations[st.Network])
	st.GasOracleSpeed = get([]string{"gas_oracle_speed", "GAS_ORACLE_SPEED"}, "standard")
	st.TipGwei = getInt64([]string{"tip_gwei", "TIP_GWEI"}, 30)
	st.BasefeeMul = getInt64([]string{"basefee_mul", "BASE_MUL"}, 2)

	st.CallTimeout = getMillis([]string{"call_timeout_ms", "CALL_TIMEOUT_MS"}, safecore.DefaultCallTimeout)
	st.ReceiptTimeout = getMillis([]string{"receipt_timeout_ms", "RECEIPT_TIMEOUT_MS"}, safecore.DefaultReceiptTimeout)
	st.ReceiptPoll = getMillis([]string{"receipt_poll_ms", "RECEIPT_POLL_MS"}, 2*time.Second)

	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.PushgatewayURL = get([]string{"pushgateway_url", "PUSHGATEWAY_URL"}, "")
	return st
}

// Core validates the settings into the immutable pipeline config.
func (s Settings) Core() (safecore.Config, error) {
	var cfg safecore.Config
	cfg.Network = s.Network

	var err error
	if cfg.ChainID, err = s.ParseChainID(); err != nil {
		return cfg, err
	}
	if cfg.Safe, err = address("SAFE_ADDRESS", s.SafeAddress); err != nil {
		return cfg, err
	}
	if cfg.Signer, err = address("SIGNER_ADDRESS", s.SignerAddress); err != nil {
		return cfg, err
	}
	if cfg.Gas.Strategy, err = safecore.ParseGasStrategy(s.GasPolicy); err != nil {
		return cfg, err
	}
	cfg.Gas.Limit = s.GasLimit
	cfg.Gas.BufferPct = s.GasBufferPct
	if cfg.Gas.Strategy == safecore.GasFixed && cfg.Gas.Limit == 0 {
		cfg.Gas.Limit = safecore.DefaultFixedGasLimit
	}
	cfg.CallTimeout = s.CallTimeout
	cfg.ReceiptTimeout = s.ReceiptTimeout
	return cfg, nil
}

// ParseChainID returns nil when CHAIN_ID is unset and the network is unknown;
// the caller then takes the node's chain id.
func (s Settings) ParseChainID() (*big.Int, error) {
	if s.ChainID == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(s.ChainID, 0)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("%w: CHAIN_ID %q is not a positive integer", safecore.ErrConfig, s.ChainID)
	}
	return id, nil
}

// HasCredential reports whether a key or mnemonic is configured.
func (s Settings) HasCredential() bool {
	return s.SignerKeyHex != "" || s.SignerMnemonic != ""
}

// Credential builds the signing key. The private key wins over the mnemonic.
func (s Settings) Credential() (*safecore.Credential, error) {
	switch {
	case s.SignerKeyHex != "":
		return safecore.CredentialFromHex(s.SignerKeyHex)
	case s.SignerMnemonic != "":
		return safecore.CredentialFromMnemonic(s.SignerMnemonic, s.SignerHDPath)
	}
	return nil, fmt.Errorf("%w: set SIGNER_PRIVATE_KEY or SIGNER_MNEMONIC", safecore.ErrConfig)
}

func address(key, v string) (common.Address, error) {
	if v == "" {
		return common.Address{}, fmt.Errorf("%w: %s is not set", safecore.ErrConfig, key)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", safecore.ErrConfig, key, v)
	}
	return common.HexToAddress(v), nil
}
