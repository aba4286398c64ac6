package safecore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Credential is a secp256k1 key. It never prints its secret.
type Credential struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// CredentialFromHex parses a hex private key (with / without 0x).
func CredentialFromHex(s string) (*Credential, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: empty private key", ErrSigning)
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		// the geth error may quote input bytes
		return nil, fmt.Errorf("%w: malformed private key", ErrSigning)
	}
	return newCredential(prv), nil
}

// CredentialFromMnemonic derives a key from a BIP-39 mnemonic along a BIP-32
// path. An empty path means m/44'/60'/0'/0/0.
func CredentialFromMnemonic(mnemonic, path string) (*Credential, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" {
		return nil, fmt.Errorf("%w: mnemonic is required", ErrSigning)
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrSigning)
	}
	dp := accounts.DefaultBaseDerivationPath
	if p := strings.TrimSpace(path); p != "" {
		if dp, err = accounts.ParseDerivationPath(p); err != nil {
			return nil, fmt.Errorf("%w: derivation path: %w", ErrSigning, err)
		}
	}
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %w", ErrSigning, err)
	}
	for _, n := range dp {
		if key, err = key.Derive(n); err != nil {
			return nil, fmt.Errorf("%w: derive %s: %w", ErrSigning, dp, err)
		}
	}
	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	prv, err := gethcrypto.ToECDSA(ecPriv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return newCredential(prv), nil
}

func newCredential(prv *ecdsa.PrivateKey) *Credential {
	return &Credential{key: prv, addr: gethcrypto.PubkeyToAddress(prv.PublicKey)}
}

func (c *Credential) Address() common.Address { return c.addr }

func (c *Credential) String() string { return "credential(" + c.addr.Hex() + ")" }

// GoString keeps %#v from dumping the key.
func (c *Credential) GoString() string { return c.String() }

// Transactor returns bind options that send from this credential's account.
func (c *Credential) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(c.key, chainID)
}

// Signer produces owner signatures over SafeTx hashes.
type Signer struct {
	cred   *Credential
	domain Domain
}

// NewSigner binds cred to the declared signer address; a mismatch is a signing error.
func NewSigner(cred *Credential, declared common.Address, d Domain) (*Signer, error) {
	if cred == nil {
		return nil, fmt.Errorf("%w: no credential", ErrSigning)
	}
	if cred.addr != declared {
		return nil, fmt.Errorf("%w: credential controls %s, declared signer is %s", ErrSigning, cred.addr.Hex(), declared.Hex())
	}
	return &Signer{cred: cred, domain: d}, nil
}

func (s *Signer) Address() common.Address { return s.cred.addr }

func (s *Signer) Domain() Domain { return s.domain }

// Sign returns the 65-byte owner signature for tx.
func (s *Signer) Sign(tx *SafeTransaction) (Signature, error) {
	h, err := SafeTxHash(tx, s.domain)
	if err != nil {
		return nil, err
	}
	return s.SignHash(h)
}

// SignHash signs a precomputed SafeTx hash.
func (s *Signer) SignHash(h common.Hash) (Signature, error) {
	sig, err := gethcrypto.Sign(h.Bytes(), s.cred.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced sig over hash.
func RecoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature is not 65 bytes")
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] > 1 {
		cp[64] -= 27
	}
	pub, err := gethcrypto.SigToPub(hash.Bytes(), cp)
	if err != nil {
		return common.Address{}, err
	}
	return gethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether sig over hash was produced by signer.
func VerifySignature(hash common.Hash, sig Signature, signer common.Address) bool {
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		return false
	}
	addr, err := RecoverSigner(hash, sig)
	return err == nil && addr == signer
}
