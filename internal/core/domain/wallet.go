package domain

import "time"

// WalletType identifies how a wallet's key material was obtained.
type WalletType string

const (
	WalletTypeMnemonic WalletType = "mnemonic"
	WalletTypeHot      WalletType = "hot"
	WalletTypeLedger   WalletType = "ledgerHardware"
	WalletTypeKeystone WalletType = "keystoneHardware"
)

// Hardware reports whether this wallet type keeps its private key off-device.
func (t WalletType) Hardware() bool {
	return t == WalletTypeLedger || t == WalletTypeKeystone
}

// Wallet is the persisted wallet aggregate. Address is the primary key.
// PrivateKey and Mnemonic are empty for hardware wallets.
type Wallet struct {
	Address        Address    `json:"address"`
	Type           WalletType `json:"type"`
	PublicKey      string     `json:"public_key"`
	PrivateKey     string     `json:"private_key,omitempty"`
	Mnemonic       string     `json:"mnemonic,omitempty"`
	DerivationPath string     `json:"derivation_path"`
	RootAddress    Address    `json:"root_address"`
	IsMain         bool       `json:"is_main"`
	IsHidden       bool       `json:"is_hidden"`
	MnemonicSaved  bool       `json:"mnemonic_saved"`
	Name           string     `json:"name"`
	DeviceID       string     `json:"device_id,omitempty"`
	DeviceName     string     `json:"device_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
