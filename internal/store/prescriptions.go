package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dawapos/dawapos/internal/model"
)

// Prescriptions move pending -> verified -> dispensed, or get cancelled.
// Dispensing itself happens in dispensing.go; this file owns the rest of the
// lifecycle.

// PrescriptionItemInput is one prescribed product when creating a prescription.
type PrescriptionItemInput struct {
	ProductID          int64  `json:"product_id"`
	PrescribedQuantity int    `json:"prescribed_quantity"`
	DosageInstructions string `json:"dosage_instructions"`
}

// CreatePrescription records a new prescription in pending status.
func CreatePrescription(ctx context.Context, db *sql.DB, patientName string, patientAge *int,
	prescriberName string, prescriptionDate time.Time, notes string,
	items []PrescriptionItemInput, actor *model.Actor) (*model.Prescription, error) {

	if actor == nil {
		return nil, &model.ForbiddenError{Action: "create prescriptions"}
	}
	if patientName == "" {
		return nil, &model.ValidationError{Field: "patient_name", Reason: "required"}
	}
	if prescriberName == "" {
		return nil, &model.ValidationError{Field: "prescriber_name", Reason: "required"}
	}
	if len(items) == 0 {
		return nil, &model.ValidationError{Field: "items", Reason: "at least one item required"}
	}
	for _, item := range items {
		if item.PrescribedQuantity <= 0 {
			return nil, &model.ValidationError{Field: "prescribed_quantity", Reason: "must be positive"}
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO prescriptions (patient_name, patient_age, prescriber_name, prescription_date, notes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		patientName, patientAge, prescriberName, prescriptionDate, notes, actor.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating prescription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting prescription id: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO prescription_items (prescription_id, product_id, prescribed_quantity, dosage_instructions)
			 VALUES (?, ?, ?, ?)`,
			id, item.ProductID, item.PrescribedQuantity, item.DosageInstructions,
		)
		if err != nil {
			return nil, fmt.Errorf("creating prescription item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing prescription: %w", err)
	}

	return GetPrescription(ctx, db, id)
}

// GetPrescription returns a prescription with its items.
func GetPrescription(ctx context.Context, db *sql.DB, id int64) (*model.Prescription, error) {
	p := &model.Prescription{}
	var patientAge sql.NullInt64
	var notes sql.NullString
	var verifiedBy sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT id, patient_name, patient_age, prescriber_name, prescription_date,
		        notes, status, verified_by, created_by, created_at, updated_at
		 FROM prescriptions WHERE id = ?`, id,
	).Scan(&p.ID, &p.PatientName, &patientAge, &p.PrescriberName, &p.PrescriptionDate,
		&notes, &p.Status, &verifiedBy, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting prescription: %w", err)
	}
	if patientAge.Valid {
		age := int(patientAge.Int64)
		p.PatientAge = &age
	}
	p.Notes = notes.String
	if verifiedBy.Valid {
		v := verifiedBy.Int64
		p.VerifiedBy = &v
	}

	rows, err := db.QueryContext(ctx,
		`SELECT pi.id, pi.prescription_id, pi.product_id, pi.prescribed_quantity,
		        pi.dispensed_quantity, pi.dosage_instructions, p.name AS product_name
		 FROM prescription_items pi JOIN products p ON p.id = pi.product_id
		 WHERE pi.prescription_id = ?
		 ORDER BY pi.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting prescription items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.PrescriptionItem
		var dosage sql.NullString
		if err := rows.Scan(&item.ID, &item.PrescriptionID, &item.ProductID,
			&item.PrescribedQuantity, &item.DispensedQuantity, &dosage, &item.ProductName); err != nil {
			return nil, fmt.Errorf("scanning prescription item: %w", err)
		}
		item.DosageInstructions = dosage.String
		p.Items = append(p.Items, item)
	}
	return p, rows.Err()
}

// ListPrescriptions returns prescriptions newest first, optionally filtered
// by status.
func ListPrescriptions(ctx context.Context, db *sql.DB, status string) ([]model.Prescription, error) {
	query := `SELECT id, patient_name, patient_age, prescriber_name, prescription_date,
	                 notes, status, verified_by, created_by, created_at, updated_at
	          FROM prescriptions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []model.Prescription
	for rows.Next() {
		var p model.Prescription
		var patientAge, verifiedBy sql.NullInt64
		var notes sql.NullString
		if err := rows.Scan(&p.ID, &p.PatientName, &patientAge, &p.PrescriberName,
			&p.PrescriptionDate, &notes, &p.Status, &verifiedBy, &p.CreatedBy,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning prescription: %w", err)
		}
		if patientAge.Valid {
			age := int(patientAge.Int64)
			p.PatientAge = &age
		}
		p.Notes = notes.String
		if verifiedBy.Valid {
			v := verifiedBy.Int64
			p.VerifiedBy = &v
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, rows.Err()
}

// VerifyPrescription moves a pending prescription to verified.
func VerifyPrescription(ctx context.Context, db *sql.DB, id int64, actor *model.Actor) (*model.Prescription, error) {
	if !actor.IsStaff() {
		return nil, &model.ForbiddenError{Action: "verify prescriptions"}
	}

	p, err := GetPrescription(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &model.NotFoundError{Entity: "prescription", ID: id}
	}
	if p.Status != model.PrescriptionStatusPending {
		return nil, &model.InvalidTransitionError{Entity: "prescription", Status: p.Status, Action: "verify"}
	}

	_, err = db.ExecContext(ctx,
		`UPDATE prescriptions SET status = ?, verified_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.PrescriptionStatusVerified, actor.UserID, id, model.PrescriptionStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("verifying prescription: %w", err)
	}

	return GetPrescription(ctx, db, id)
}

// CancelPrescription cancels a prescription that has not been dispensed yet.
func CancelPrescription(ctx context.Context, db *sql.DB, id int64, actor *model.Actor) (*model.Prescription, error) {
	if !actor.IsStaff() {
		return nil, &model.ForbiddenError{Action: "cancel prescriptions"}
	}

	p, err := GetPrescription(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &model.NotFoundError{Entity: "prescription", ID: id}
	}
	if p.Status != model.PrescriptionStatusPending && p.Status != model.PrescriptionStatusVerified {
		return nil, &model.InvalidTransitionError{Entity: "prescription", Status: p.Status, Action: "cancel"}
	}

	_, err = db.ExecContext(ctx,
		`UPDATE prescriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.PrescriptionStatusCancelled, id,
	)
	if err != nil {
		return nil, fmt.Errorf("cancelling prescription: %w", err)
	}

	return GetPrescription(ctx, db, id)
}
