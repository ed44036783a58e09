// Package wallet implements key generation, derivation, import, encryption,
// and backup for the operator's signing key. All functions are pure: a
// Wallet carries only the key material, never a file handle or a network
// connection.
package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath is the standard EVM account-0 BIP-44 path.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Wallet wraps a secp256k1 private key and exposes the checksummed address
// derived from it.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
}

// Address returns the checksummed 20-byte address for this wallet.
func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.PrivateKey.PublicKey)
}

// PrivateKeyHex returns the raw private key as a 0x-prefixed hex string.
// Callers must never pass this to a logger; use Redact on any string that
// might contain it.
func (w *Wallet) PrivateKeyHex() string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(w.PrivateKey))
}

// Generate creates a new wallet from crypto/rand.
func Generate() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generating key: %w", err)
	}
	return &Wallet{PrivateKey: key}, nil
}

// GenerateWithEntropy creates a wallet deterministically from 32 bytes of
// caller-supplied entropy, for tests and reproducible tooling.
func GenerateWithEntropy(seed [32]byte) (*Wallet, error) {
	key, err := crypto.ToECDSA(seed[:])
	if err != nil {
		return nil, fmt.Errorf("wallet: deriving key from entropy: %w", err)
	}
	return &Wallet{PrivateKey: key}, nil
}

// NewMnemonic generates a fresh BIP-39 mnemonic at the given entropy bit
// size (128 => 12 words, 256 => 24 words).
func NewMnemonic(bits int) (string, error) {
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("wallet: generating entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveFromMnemonic derives a wallet from a BIP-39 mnemonic phrase along
// the given BIP-32 path. Only the plain (non-hardened beyond account level)
// tail "m/44'/60'/0'/0/0" shape is supported, matching the one path this
// agent ever uses.
func DeriveFromMnemonic(phrase, path string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, errors.New("wallet: invalid mnemonic")
	}
	if path == "" {
		path = DefaultDerivationPath
	}

	seed := bip39.NewSeed(phrase, "")
	// btcutil/hdkeychain's network parameter only governs the extended
	// key's serialization version bytes; it has no bearing on the derived
	// secp256k1 scalar, so Bitcoin mainnet params are used unconditionally
	// even though the derived key signs EVM transactions.
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("wallet: deriving master key: %w", err)
	}

	segments, err := parseDerivationPath(path)
	if err != nil {
		return nil, err
	}

	key := master
	for _, seg := range segments {
		key, err = key.Derive(seg)
		if err != nil {
			return nil, fmt.Errorf("wallet: deriving child at segment %d: %w", seg, err)
		}
	}

	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: extracting private key: %w", err)
	}

	priv, err := crypto.ToECDSA(ecPriv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("wallet: converting to ECDSA: %w", err)
	}
	return &Wallet{PrivateKey: priv}, nil
}

// ImportPrivateKey loads a wallet from a 0x-prefixed or bare hex private key.
func ImportPrivateKey(hexKey string) (*Wallet, error) {
	priv, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing private key: %w", err)
	}
	return &Wallet{PrivateKey: priv}, nil
}

// ImportMnemonic is an alias of DeriveFromMnemonic using the default path,
// matching the spec's pure-function surface.
func ImportMnemonic(phrase string) (*Wallet, error) {
	return DeriveFromMnemonic(phrase, DefaultDerivationPath)
}

// ImportEncryptedJson reads a go-ethereum-compatible encrypted keystore
// file (UTC--... format) and decrypts it with password.
func ImportEncryptedJson(jsonData []byte, password string) (*Wallet, error) {
	key, err := keystore.DecryptKey(jsonData, password)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypting keystore json: %w", err)
	}
	return &Wallet{PrivateKey: key.PrivateKey}, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// randomSeed returns 32 bytes of crypto/rand entropy, used by tests that
// need a reproducible-shaped call without hand-rolling rand.Read.
func randomSeed() ([32]byte, error) {
	var seed [32]byte
	_, err := rand.Read(seed[:])
	return seed, err
}
