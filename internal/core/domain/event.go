package domain

// EventType names a bus event.
type EventType string

const (
	// EventWalletAdded fires after a wallet record is committed to the store.
	EventWalletAdded EventType = "wallet-added"

	// EventWalletRemoved fires only after the record is verified deleted.
	EventWalletRemoved EventType = "wallet-removed"

	// EventBackupReminder carries the first visible wallet whose mnemonic
	// has not been backed up.
	EventBackupReminder EventType = "backup-reminder"

	// EventEnterPin carries an externally supplied PIN candidate.
	EventEnterPin EventType = "enter-pin"

	// EventPinError reports a rejected PIN candidate with a reason.
	EventPinError EventType = "pin-error"

	// EventAuthChanged reports the new value of the authenticated flag.
	EventAuthChanged EventType = "auth-changed"

	// EventTxnInserted fires after a transaction record is committed.
	EventTxnInserted EventType = "transaction-inserted"
)

// Event is a bus message: a type plus one of the optional payload fields.
type Event struct {
	Type    EventType
	Address Address
	Wallet  *Wallet
	Txn     *Transaction
	Pin     string
	Reason  string
	Flag    bool
}
