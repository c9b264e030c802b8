package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RestockRequest is a staff request to order more stock from a supplier.
// Status moves through an explicit state machine; completing an approved
// request is what actually restocks the product.
type RestockRequest struct {
	ID                int64            `json:"id"`
	ProductID         int64            `json:"product_id"`
	RequestedBy       int64            `json:"requested_by"`
	ApprovedBy        *int64           `json:"approved_by,omitempty"`
	RequestedQuantity int              `json:"requested_quantity"`
	CurrentQuantity   int              `json:"current_quantity"` // stock level when requested
	Status            string           `json:"status"`
	Notes             string           `json:"notes,omitempty"`
	Supplier          string           `json:"supplier,omitempty"`
	EstimatedCost     *decimal.Decimal `json:"estimated_cost,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
}

// Restock request statuses.
const (
	RestockStatusPending   = "pending"
	RestockStatusApproved  = "approved"
	RestockStatusRejected  = "rejected"
	RestockStatusCompleted = "completed"
	RestockStatusCancelled = "cancelled"
)

// Restock request actions.
const (
	RestockActionApprove  = "approve"
	RestockActionReject   = "reject"
	RestockActionComplete = "complete"
	RestockActionCancel   = "cancel"
)

// RestockStatusTerminal reports whether a request in this status is final.
func RestockStatusTerminal(status string) bool {
	switch status {
	case RestockStatusRejected, RestockStatusCompleted, RestockStatusCancelled:
		return true
	}
	return false
}
