package model

import "time"

// StockLogEntry is one row of the append-only stock ledger. Entries are
// created only as a side effect of an inventory mutation, inside the same
// transaction, and are never updated or deleted.
type StockLogEntry struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	ChangeAmount     int       `json:"change_amount"` // positive for add, negative for deduct
	ChangeType       string    `json:"change_type"`
	Reason           string    `json:"reason,omitempty"`
	LoggedBy         *int64    `json:"logged_by,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	AlertTriggered   bool      `json:"alert_triggered"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
}

// Stock change types.
const (
	ChangeTypeRestock    = "restock"
	ChangeTypeSale       = "sale"
	ChangeTypeAdjustment = "adjustment"
	ChangeTypeExpiry     = "expiry"
)

// ValidChangeType reports whether t is a known stock change type.
func ValidChangeType(t string) bool {
	switch t {
	case ChangeTypeRestock, ChangeTypeSale, ChangeTypeAdjustment, ChangeTypeExpiry:
		return true
	}
	return false
}
