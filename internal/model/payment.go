package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a payment record for an order. Gateway-backed methods (M-Pesa,
// Stripe) are settled by the payments package outside any inventory
// transaction; cash payments for quick sales are written inside the sale
// transaction as plain bookkeeping.
type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Payment methods.
const (
	PaymentMethodMpesa  = "mpesa"
	PaymentMethodStripe = "stripe"
	PaymentMethodCOD    = "cash_on_delivery"
	PaymentMethodCash   = "cash"
)

// Payment statuses.
const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)
