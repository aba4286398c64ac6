package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/chain"
	"github.com/ligun0805/safe-batch/internal/config"
	"github.com/ligun0805/safe-batch/internal/gasoracle"
	"github.com/ligun0805/safe-batch/internal/metrics"
	"github.com/ligun0805/safe-batch/internal/safecore"
)

// gasFlags override GAS_* settings for run and plan.
type gasFlags struct {
	policy string
	limit  uint64
	buffer int64
}

func (g *gasFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.policy, "gas-policy", "", "fixed|query (default from GAS_POLICY)")
	cmd.Flags().Uint64Var(&g.limit, "gas-limit", 0, "fixed gas limit, or cap in query mode")
	cmd.Flags().Int64Var(&g.buffer, "gas-buffer-pct", -1, "percent added to the estimate in query mode")
}

func (g gasFlags) apply(st *config.Settings) {
	if g.policy != "" {
		st.GasPolicy = g.policy
	}
	if g.limit > 0 {
		st.GasLimit = g.limit
	}
	if g.buffer >= 0 {
		st.GasBufferPct = g.buffer
	}
}

// session is everything a signing command needs: validated config, the
// credential, a dialed client and the Safe's signing domain.
type session struct {
	st      config.Settings
	cfg     safecore.Config
	cred    *safecore.Credential
	client  *chain.Client
	signer  *safecore.Signer
	version string
	metrics *metrics.Batch
	log     *slog.Logger
}

func openSession(ctx context.Context, st config.Settings) (*session, error) {
	cfg, err := st.Core()
	if err != nil {
		return nil, err
	}
	if !st.HasCredential() && stdinIsTerminal() {
		st.SignerKeyHex = readPassword(fmt.Sprintf("Private key for %s: ", cfg.Signer.Hex()))
	}
	cred, err := st.Credential()
	if err != nil {
		return nil, err
	}

	s := &session{st: st, cred: cred, metrics: metrics.New(st.Network), log: slog.Default()}
	s.client, err = dialChain(ctx, st, cfg.ChainID, cfg.Safe, cred, s.metrics)
	if err != nil {
		return nil, err
	}
	if cfg.ChainID == nil {
		cfg.ChainID = s.client.ChainID()
	}
	domain, version, err := s.client.Domain(ctx)
	if err != nil {
		s.client.Close()
		return nil, fmt.Errorf("read Safe version: %w", err)
	}
	s.version = version
	if s.signer, err = safecore.NewSigner(cred, cfg.Signer, domain); err != nil {
		s.client.Close()
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

// dialChain connects to the node and checks CHAIN_ID against it when set.
func dialChain(ctx context.Context, st config.Settings, chainID *big.Int, safe common.Address, cred *safecore.Credential, m *metrics.Batch) (*chain.Client, error) {
	opts := chain.Options{
		RPCURL:      st.RPCURL,
		Safe:        safe,
		Executor:    cred,
		ReceiptPoll: st.ReceiptPoll,
		Logger:      slog.Default(),
		Fees: chain.FeeOptions{
			BaseMul: st.BasefeeMul,
			TipGwei: st.TipGwei,
		},
	}
	if st.GasOracleURL != "" {
		speed, err := gasoracle.ParseSpeed(st.GasOracleSpeed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", safecore.ErrConfig, err)
		}
		opts.Fees.Oracle = &gasoracle.Station{URL: st.GasOracleURL, Speed: speed}
	}
	if m != nil {
		opts.OnCall = func(method string, d time.Duration, err error) {
			m.ObserveCall(method, d, classify(err))
		}
	}
	c, err := chain.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	if chainID != nil && c.ChainID().Cmp(chainID) != 0 {
		c.Close()
		return nil, fmt.Errorf("%w: CHAIN_ID %s does not match node chain %s", safecore.ErrConfig, chainID, c.ChainID())
	}
	return c, nil
}

func classify(err error) string {
	if err == nil {
		return ""
	}
	return chain.ClassifyRPCError(err)
}

// close pushes metrics when a Pushgateway is configured and drops the connection.
func (s *session) close() {
	if s.st.PushgatewayURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.metrics.Push(ctx, s.st.PushgatewayURL); err != nil {
			s.log.Warn("metrics push failed", "url", s.st.PushgatewayURL, "err", err)
		}
		cancel()
	}
	s.client.Close()
}

func safeAddressOnly(st config.Settings) (common.Address, error) {
	if !common.IsHexAddress(st.SafeAddress) {
		return common.Address{}, fmt.Errorf("%w: SAFE_ADDRESS %q is not set or not an address", safecore.ErrConfig, st.SafeAddress)
	}
	return common.HexToAddress(st.SafeAddress), nil
}
