package model

import "time"

// Prescription is an uploaded prescription working its way through
// verification. Only a verified prescription may be dispensed.
type Prescription struct {
	ID               int64     `json:"id"`
	PatientName      string    `json:"patient_name"`
	PatientAge       *int      `json:"patient_age,omitempty"`
	PrescriberName   string    `json:"prescriber_name"`
	PrescriptionDate time.Time `json:"prescription_date"`
	Notes            string    `json:"notes,omitempty"`
	Status           string    `json:"status"`
	VerifiedBy       *int64    `json:"verified_by,omitempty"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Items []PrescriptionItem `json:"items,omitempty"`
}

// PrescriptionItem is one prescribed product on a prescription.
type PrescriptionItem struct {
	ID                 int64  `json:"id"`
	PrescriptionID     int64  `json:"prescription_id"`
	ProductID          int64  `json:"product_id"`
	PrescribedQuantity int    `json:"prescribed_quantity"`
	DispensedQuantity  int    `json:"dispensed_quantity"`
	DosageInstructions string `json:"dosage_instructions,omitempty"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
}

// Prescription statuses.
const (
	PrescriptionStatusPending   = "pending"
	PrescriptionStatusVerified  = "verified"
	PrescriptionStatusDispensed = "dispensed"
	PrescriptionStatusCancelled = "cancelled"
)
