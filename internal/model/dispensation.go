package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dispensation is a committed sale that removed stock from inventory. It is
// the single sale header for every path: OTC counter sales, prescription
// fulfilment, and staff quick sales (which additionally carry an order and a
// cash payment).
type Dispensation struct {
	ID             int64           `json:"id"`
	SaleType       string          `json:"sale_type"`
	PrescriptionID *int64          `json:"prescription_id,omitempty"`
	OrderID        *int64          `json:"order_id,omitempty"`
	PatientName    string          `json:"patient_name,omitempty"` // for OTC sales
	DispensedBy    int64           `json:"dispensed_by"`
	DispensedAt    time.Time       `json:"dispensed_at"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Notes          string          `json:"notes,omitempty"`

	Items []DispensationItem `json:"items,omitempty"`
}

// DispensationItem is one line of a dispensation. Price and expiry are
// snapshots taken at sale time; stock_log_id points at the ledger entry the
// deduction produced, so any stock number traces back to its sale.
type DispensationItem struct {
	ID           int64           `json:"id"`
	DispensationID int64         `json:"dispensation_id"`
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	StockLogID   int64           `json:"stock_log_id"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
}

// Sale types.
const (
	SaleTypePrescription = "prescription"
	SaleTypeOTC          = "otc"
)

// DispensingLogEntry is the quick-sale reporting shape, read from the
// dispensing_log view over dispensation items and their stock log entries.
type DispensingLogEntry struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	DispensedBy   int64           `json:"dispensed_by"`
	OrderID       *int64          `json:"order_id,omitempty"`
	PreviousStock int             `json:"previous_stock"`
	NewStock      int             `json:"new_stock"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	CreatedAt     time.Time       `json:"created_at"`
}
