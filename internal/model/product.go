package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a pharmaceutical product in the catalog. The stock
// quantity is only ever written through the inventory store functions, so
// that every change lands in the stock log.
type Product struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Category         string          `json:"category"`
	Price            decimal.Decimal `json:"price"`
	StockQuantity    int             `json:"stock_quantity"`
	ReorderThreshold int             `json:"reorder_threshold"`
	Supplier         string          `json:"supplier,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	ImageMime        string          `json:"image_mime,omitempty"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Product categories.
const (
	CategoryPainRelief  = "pain_relief"
	CategoryAntibiotics = "antibiotics"
	CategoryVitamins    = "vitamins"
	CategoryChronicCare = "chronic_care"
	CategoryDermatology = "dermatology"
	CategoryOther       = "other"
)

// ValidCategory reports whether c is a known product category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryPainRelief, CategoryAntibiotics, CategoryVitamins,
		CategoryChronicCare, CategoryDermatology, CategoryOther:
		return true
	}
	return false
}

// Expiry statuses derived from the expiry date.
const (
	ExpiryStatusExpired      = "expired"
	ExpiryStatusExpiringSoon = "expiring_soon" // within 30 days
	ExpiryStatusNearExpiry   = "near_expiry"   // 31 to 90 days
	ExpiryStatusValid        = "valid"
	ExpiryStatusUnknown      = "unknown" // no expiry date recorded
)

// InStock reports whether there is any stock left.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// IsLowStock reports whether stock is at or below the reorder threshold.
func (p *Product) IsLowStock() bool {
	return p.StockQuantity <= p.ReorderThreshold
}

// DaysUntilExpiry returns the number of whole days until the product expires,
// relative to today. Negative if already expired, nil if no expiry date.
func (p *Product) DaysUntilExpiry(today time.Time) *int {
	if p.ExpiryDate == nil {
		return nil
	}
	days := int(p.ExpiryDate.Sub(today.Truncate(24*time.Hour)).Hours() / 24)
	return &days
}

// ExpiryStatus classifies the product's expiry date relative to today.
func (p *Product) ExpiryStatus(today time.Time) string {
	days := p.DaysUntilExpiry(today)
	if days == nil {
		return ExpiryStatusUnknown
	}
	switch {
	case *days < 0:
		return ExpiryStatusExpired
	case *days <= 30:
		return ExpiryStatusExpiringSoon
	case *days <= 90:
		return ExpiryStatusNearExpiry
	default:
		return ExpiryStatusValid
	}
}
