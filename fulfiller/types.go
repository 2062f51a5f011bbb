package fulfiller

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses as stored in the orders table. Only "pending" orders are
// eligible for matching or dialing; every terminal outcome is one of the
// other two.
const (
	StatusPending              = "pending"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusFailed               = "failed"
)

// Supported transfer types. Orders with any other type are ignored by intake.
const (
	TransferDirect = "direct"
	TransferCard   = "card"
)

// Order is an immutable snapshot of an order row, read once when the order
// enters the system. The store remains authoritative for status.
type Order struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Commission    decimal.Decimal `json:"commission"`
	Provider      string          `json:"provider"`
	TransferType  string          `json:"transfer_type"`
	TargetInfo    string          `json:"target_info"`
	Status        string          `json:"status"`
	UserID        string          `json:"user_id"`
	UserFullName  string          `json:"user_full_name"`
	UserPhone     string          `json:"user_phone"`
	ReceivingCard string          `json:"receiving_card"`
	DeviceType    string          `json:"device_type"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NotificationEvent is a parsed inbound transfer notification. Events are
// ephemeral and carry no identity; duplicate delivery is possible.
type NotificationEvent struct {
	Amount      decimal.Decimal `json:"amount"`
	SenderPhone string          `json:"sender_phone"`
	Provider    string          `json:"provider"`
}

// ChangeType tags an entry on the order change feed.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeRemoved
)

func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

// OrderChange is one entry on the change feed consumed by intake. The feed
// is pre-filtered to orders whose stored status is "pending".
type OrderChange struct {
	Type  ChangeType
	Order Order
}

// StatusUpdate carries the fields written alongside a status transition.
// Zero-valued fields are left untouched in the store.
type StatusUpdate struct {
	Status        string
	Reason        string
	AmountMatched decimal.Decimal
	SenderPhone   string
	ResponseText  string
	Message       string
	ConfirmedAt   time.Time
}

// OrderStore is the write surface of the external order store. Update
// failures are observable for logging only; the core never retries them.
type OrderStore interface {
	UpdateStatus(orderID string, update StatusUpdate) error
}
