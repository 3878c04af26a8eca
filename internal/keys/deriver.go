// Package keys implements the key derivation service: BIP-39 mnemonics and
// BIP-44 paths in, EVM-style keypairs and addresses out.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"

	"github.com/vietddude/walletd/internal/core/domain"
)

// ErrDerivation wraps any failure to derive key material.
var ErrDerivation = errors.New("key derivation failed")

// DefaultPath is the seed account's derivation path. The address derived here
// is the root address grouping all sibling accounts of the same mnemonic.
const DefaultPath = "m/44'/60'/0'/0/0"

// Derived is the output of a derivation: everything the registry persists.
type Derived struct {
	Address     domain.Address
	RootAddress domain.Address
	PublicKey   string
	PrivateKey  string
	Mnemonic    string
	Path        string
}

// Deriver derives wallet key material. Stateless.
type Deriver struct{}

func NewDeriver() *Deriver {
	return &Deriver{}
}

// FromMnemonic derives the account at path from a BIP-39 mnemonic.
func (d *Deriver) FromMnemonic(mnemonic, path string) (*Derived, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrDerivation)
	}
	if path == "" {
		path = DefaultPath
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", ErrDerivation, err)
	}

	key, err := deriveAtPath(master, path)
	if err != nil {
		return nil, err
	}

	priv := privateKeyBytes(key)
	pub := secp256k1.PrivKeyFromBytes(priv).PubKey()
	addr := pubkeyToAddress(pub)

	root := addr
	if path != DefaultPath {
		rootKey, err := deriveAtPath(master, DefaultPath)
		if err != nil {
			return nil, err
		}
		rootPub := secp256k1.PrivKeyFromBytes(privateKeyBytes(rootKey)).PubKey()
		root = pubkeyToAddress(rootPub)
	}

	return &Derived{
		Address:     addr,
		RootAddress: root,
		PublicKey:   hex.EncodeToString(pub.SerializeCompressed()),
		PrivateKey:  "0x" + hex.EncodeToString(priv),
		Mnemonic:    mnemonic,
		Path:        path,
	}, nil
}

// FromPrivateKey derives the account for a raw hex private key. The account is
// its own root: there is no seed to group siblings under.
func (d *Deriver) FromPrivateKey(privateKey string) (*Derived, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key hex: %v", ErrDerivation, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrDerivation, len(raw))
	}

	priv := secp256k1.PrivKeyFromBytes(raw)
	pub := priv.PubKey()
	addr := pubkeyToAddress(pub)

	return &Derived{
		Address:     addr,
		RootAddress: addr,
		PublicKey:   hex.EncodeToString(pub.SerializeCompressed()),
		PrivateKey:  "0x" + hex.EncodeToString(raw),
	}, nil
}

// deriveAtPath walks a BIP-44 path string like m/44'/60'/0'/0/0.
func deriveAtPath(master *bip32.Key, path string) (*bip32.Key, error) {
	indices, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	key := master
	for _, idx := range indices {
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: derive child %d: %v", ErrDerivation, idx, err)
		}
	}
	return key, nil
}

func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: path must start with m: %q", ErrDerivation, path)
	}

	indices := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'")
		p = strings.TrimSuffix(p, "'")
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: bad path segment %q", ErrDerivation, p)
		}
		idx := uint32(n)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// privateKeyBytes strips the leading zero byte bip32 keeps on private keys.
func privateKeyBytes(key *bip32.Key) []byte {
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// pubkeyToAddress is the EVM convention: last 20 bytes of the Keccak-256 hash
// of the uncompressed public key without its 0x04 prefix.
func pubkeyToAddress(pub *secp256k1.PublicKey) domain.Address {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	return domain.NewAddress("0x" + hex.EncodeToString(sum[12:]))
}
