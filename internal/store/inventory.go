package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
)

// Inventory mutations. Every stock change goes through applyStockChange so
// the product row and its ledger entry are written in the same transaction
// and can never disagree.

// lockedProduct is the product state read under the transaction's write lock.
type lockedProduct struct {
	ID               int64
	Name             string
	StockQuantity    int
	ReorderThreshold int
	Price            decimal.Decimal
	ExpiryDate       *time.Time
	IsActive         bool
}

// lockProductForUpdate takes the database write lock (SQLite locks the whole
// database for writes, so an early no-op update serializes concurrent
// read-modify-write cycles) and returns the product's current stock state.
func lockProductForUpdate(ctx context.Context, tx *sql.Tx, productID int64) (*lockedProduct, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET updated_at = updated_at WHERE id = ?`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("locking product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &model.NotFoundError{Entity: "product", ID: productID}
	}

	p := &lockedProduct{}
	var expiry sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, stock_quantity, reorder_threshold, price, expiry_date, is_active
		 FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.StockQuantity, &p.ReorderThreshold, &p.Price, &expiry, &p.IsActive)
	if err != nil {
		return nil, fmt.Errorf("reading product stock: %w", err)
	}
	if expiry.Valid {
		t := expiry.Time
		p.ExpiryDate = &t
	}
	return p, nil
}

// stockChange is the outcome of one applied mutation.
type stockChange struct {
	LogID            int64
	PreviousQuantity int
	NewQuantity      int
	AlertTriggered   bool
}

// applyStockChange writes the new quantity and appends the ledger entry, both
// on the provided transaction. The caller has already validated the delta
// against p, which was read under the same transaction.
func applyStockChange(ctx context.Context, tx *sql.Tx, p *lockedProduct, delta int,
	changeType, reason string, loggedBy *int64) (*stockChange, error) {

	newQty := p.StockQuantity + delta
	if newQty < 0 {
		return nil, &model.InvariantViolationError{ProductID: p.ID, Current: p.StockQuantity, Delta: delta}
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newQty, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating stock: %w", err)
	}

	logID, alert, err := appendStockLog(ctx, tx, p.ID, p.StockQuantity, newQty, delta,
		changeType, reason, loggedBy, p.ReorderThreshold)
	if err != nil {
		return nil, err
	}

	p.StockQuantity = newQty
	return &stockChange{
		LogID:            logID,
		PreviousQuantity: newQty - delta,
		NewQuantity:      newQty,
		AlertTriggered:   alert,
	}, nil
}

// RestockProduct increases a product's stock and records a restock ledger entry.
func RestockProduct(ctx context.Context, db *sql.DB, bus *events.Bus,
	productID int64, quantity int, reason string, actor *model.Actor) (*model.Product, error) {

	if quantity <= 0 {
		return nil, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	change, err := mutateStock(ctx, db, productID, quantity, model.ChangeTypeRestock, reason, actor)
	if err != nil {
		return nil, err
	}

	bus.Publish(events.StockEvent{
		Type:           model.ChangeTypeRestock,
		ProductID:      productID,
		ChangeAmount:   quantity,
		NewQuantity:    change.NewQuantity,
		AlertTriggered: change.AlertTriggered,
	})

	return GetProduct(ctx, db, productID)
}

// AdjustStock applies a signed correction to a product's stock. The change
// type defaults to adjustment but any known type is accepted, so expiry
// write-offs go through here too.
func AdjustStock(ctx context.Context, db *sql.DB, bus *events.Bus,
	productID int64, delta int, reason, changeType string, actor *model.Actor) (*model.Product, error) {

	if delta == 0 {
		return nil, &model.ValidationError{Field: "delta", Reason: "must be non-zero"}
	}
	if changeType == "" {
		changeType = model.ChangeTypeAdjustment
	}
	if !model.ValidChangeType(changeType) {
		return nil, &model.ValidationError{Field: "change_type", Reason: "unknown change type"}
	}

	change, err := mutateStock(ctx, db, productID, delta, changeType, reason, actor)
	if err != nil {
		return nil, err
	}

	bus.Publish(events.StockEvent{
		Type:           changeType,
		ProductID:      productID,
		ChangeAmount:   delta,
		NewQuantity:    change.NewQuantity,
		AlertTriggered: change.AlertTriggered,
	})

	return GetProduct(ctx, db, productID)
}

// DeductStock removes stock for a sale. The availability check runs under the
// same write lock as the mutation, so concurrent sales cannot both pass it.
func DeductStock(ctx context.Context, db *sql.DB, bus *events.Bus,
	productID int64, quantity int, reason string, actor *model.Actor) (*model.Product, error) {

	if quantity <= 0 {
		return nil, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := lockProductForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.StockQuantity {
		return nil, &model.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   quantity,
			Available:   p.StockQuantity,
		}
	}

	change, err := applyStockChange(ctx, tx, p, -quantity, model.ChangeTypeSale, reason, actor.LoggedBy())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing deduction: %w", err)
	}

	bus.Publish(events.StockEvent{
		Type:           model.ChangeTypeSale,
		ProductID:      productID,
		ChangeAmount:   -quantity,
		NewQuantity:    change.NewQuantity,
		AlertTriggered: change.AlertTriggered,
	})

	return GetProduct(ctx, db, productID)
}

// mutateStock runs one lock-read-apply-commit cycle for restock and adjust.
func mutateStock(ctx context.Context, db *sql.DB, productID int64, delta int,
	changeType, reason string, actor *model.Actor) (*stockChange, error) {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := lockProductForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	change, err := applyStockChange(ctx, tx, p, delta, changeType, reason, actor.LoggedBy())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stock change: %w", err)
	}
	return change, nil
}
