package keys

import (
	"errors"
	"testing"
)

// Well-known development mnemonic with published account addresses, used to
// pin the derivation to the BIP-44 EVM convention.
const testMnemonic = "test test test test test test test test test test test junk"

func TestFromMnemonic_DefaultPath(t *testing.T) {
	d := NewDeriver()

	derived, err := d.FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic failed: %v", err)
	}

	if derived.Address.String() != "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266" {
		t.Errorf("Unexpected address %s", derived.Address)
	}
	if derived.RootAddress != derived.Address {
		t.Errorf("Expected seed account to be its own root, got %s", derived.RootAddress)
	}
	if derived.Path != DefaultPath {
		t.Errorf("Expected default path, got %s", derived.Path)
	}
	if derived.PrivateKey != "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80" {
		t.Errorf("Unexpected private key %s", derived.PrivateKey)
	}
}

func TestFromMnemonic_SiblingAccount(t *testing.T) {
	d := NewDeriver()

	derived, err := d.FromMnemonic(testMnemonic, "m/44'/60'/0'/0/1")
	if err != nil {
		t.Fatalf("FromMnemonic failed: %v", err)
	}

	if derived.Address.String() != "0x70997970c51812dc3a010c7d01b50e0d17dc79c8" {
		t.Errorf("Unexpected address %s", derived.Address)
	}
	if derived.RootAddress.String() != "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266" {
		t.Errorf("Expected sibling rooted at the seed account, got %s", derived.RootAddress)
	}
}

func TestFromMnemonic_Invalid(t *testing.T) {
	d := NewDeriver()

	cases := []struct {
		name     string
		mnemonic string
		path     string
	}{
		{"bad mnemonic", "definitely not a mnemonic", ""},
		{"bad path prefix", testMnemonic, "44'/60'/0'/0/0"},
		{"bad path segment", testMnemonic, "m/44'/60'/x/0/0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := d.FromMnemonic(c.mnemonic, c.path); !errors.Is(err, ErrDerivation) {
				t.Errorf("Expected ErrDerivation, got %v", err)
			}
		})
	}
}

func TestFromPrivateKey(t *testing.T) {
	d := NewDeriver()

	derived, err := d.FromPrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("FromPrivateKey failed: %v", err)
	}

	if derived.Address.String() != "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266" {
		t.Errorf("Unexpected address %s", derived.Address)
	}
	if derived.RootAddress != derived.Address {
		t.Errorf("Expected standalone account to be its own root, got %s", derived.RootAddress)
	}
	if derived.Mnemonic != "" {
		t.Error("Expected no mnemonic for a private key import")
	}
}

func TestFromPrivateKey_Invalid(t *testing.T) {
	d := NewDeriver()

	for _, key := range []string{"", "0x1234", "not hex at all"} {
		if _, err := d.FromPrivateKey(key); !errors.Is(err, ErrDerivation) {
			t.Errorf("FromPrivateKey(%q): expected ErrDerivation, got %v", key, err)
		}
	}
}
