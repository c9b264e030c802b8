package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/model"
)

// Payments. Cash quick-sale payments are written by dispensing.go; gateway
// payments are created here in initiated status and settled by callbacks.

// CreatePayment records a new payment for an order.
func CreatePayment(ctx context.Context, db *sql.DB, orderID int64, method string,
	amount decimal.Decimal, reference string) (*model.Payment, error) {

	switch method {
	case model.PaymentMethodMpesa, model.PaymentMethodStripe, model.PaymentMethodCOD, model.PaymentMethodCash:
	default:
		return nil, &model.ValidationError{Field: "method", Reason: "unknown payment method"}
	}
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	// Each order carries at most one payment row. Retrying after a failed
	// or cancelled attempt reuses the row rather than inserting a second one.
	_, err := db.ExecContext(ctx,
		`INSERT INTO payments (order_id, method, amount, reference)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (order_id) DO UPDATE SET
		    method = excluded.method,
		    status = 'initiated',
		    amount = excluded.amount,
		    reference = excluded.reference,
		    transaction_id = NULL,
		    notes = NULL,
		    updated_at = CURRENT_TIMESTAMP`,
		orderID, method, amount.StringFixed(2), nullIfEmpty(reference),
	)
	if err != nil {
		return nil, fmt.Errorf("creating payment: %w", err)
	}

	return getPaymentForOrder(ctx, db, orderID)
}

func getPaymentForOrder(ctx context.Context, db *sql.DB, orderID int64) (*model.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ?`, orderID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment for order: %w", err)
	}
	return p, nil
}

const paymentColumns = `id, order_id, method, status, amount, reference, transaction_id,
	notes, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	p := &model.Payment{}
	var reference, transactionID, notes sql.NullString
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Amount,
		&reference, &transactionID, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Reference = reference.String
	p.TransactionID = transactionID.String
	p.Notes = notes.String
	return p, nil
}

// GetPayment returns a payment by ID.
func GetPayment(ctx context.Context, db *sql.DB, id int64) (*model.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	return p, nil
}

// GetPaymentByReference returns a payment by its gateway reference.
func GetPaymentByReference(ctx context.Context, db *sql.DB, reference string) (*model.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reference = ?`, reference)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment by reference: %w", err)
	}
	return p, nil
}

// ListPaymentsForUser returns payments on a user's orders, newest first.
func ListPaymentsForUser(ctx context.Context, db *sql.DB, userID int64) ([]model.Payment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.order_id, p.method, p.status, p.amount, p.reference,
		        p.transaction_id, p.notes, p.created_at, p.updated_at
		 FROM payments p JOIN orders o ON o.id = p.order_id
		 WHERE o.user_id = ?
		 ORDER BY p.created_at DESC, p.id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// SettlePayment records the outcome of a gateway payment. Only initiated
// payments can settle.
func SettlePayment(ctx context.Context, db *sql.DB, id int64, status, transactionID, notes string) (*model.Payment, error) {
	if status != model.PaymentStatusCompleted && status != model.PaymentStatusFailed && status != model.PaymentStatusCancelled {
		return nil, &model.ValidationError{Field: "status", Reason: "must be completed, failed, or cancelled"}
	}

	p, err := GetPayment(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &model.NotFoundError{Entity: "payment", ID: id}
	}
	if p.Status != model.PaymentStatusInitiated {
		return nil, &model.InvalidTransitionError{Entity: "payment", Status: p.Status, Action: status}
	}

	_, err = db.ExecContext(ctx,
		`UPDATE payments SET status = ?, transaction_id = ?, notes = COALESCE(NULLIF(?, ''), notes),
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		status, nullIfEmpty(transactionID), notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("settling payment: %w", err)
	}

	return GetPayment(ctx, db, id)
}
