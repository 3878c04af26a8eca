package domain

import "time"

// Transaction is the persisted transaction record. Hash is the primary key.
//
// Confirmed is monotonic: once a transaction is observed with at least one
// receipt confirmation it is terminal and never transitions back to pending.
type Transaction struct {
	Hash       string    `json:"hash"`
	From       Address   `json:"from_address"`
	To         Address   `json:"to_address"`
	Value      string    `json:"value"`
	Fee        string    `json:"fee"`
	Confirmed  bool      `json:"confirmed"`
	CreatedAt  time.Time `json:"created_at"`
	ProviderID string    `json:"provider_id"`
	Raw        []byte    `json:"raw,omitempty"`
}

// Party reports whether the given address is the sender or recipient.
func (t *Transaction) Party(addr Address) bool {
	return t.From == addr || t.To == addr
}
