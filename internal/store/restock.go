package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
)

// Restock request workflow. Statuses only change through
// TransitionRestockRequest, which knows its own preconditions; completing an
// approved request is what actually restocks the product, inside the same
// transaction as the status change.

// CreateRestockRequest files a new pending request, snapshotting the current
// stock level.
func CreateRestockRequest(ctx context.Context, db *sql.DB, productID int64,
	quantity int, notes, supplier string, estimatedCost *decimal.Decimal,
	actor *model.Actor) (*model.RestockRequest, error) {

	if actor == nil {
		return nil, &model.ForbiddenError{Action: "create restock request"}
	}
	if quantity <= 0 {
		return nil, &model.ValidationError{Field: "requested_quantity", Reason: "must be positive"}
	}

	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &model.NotFoundError{Entity: "product", ID: productID}
	}

	var cost any
	if estimatedCost != nil {
		cost = estimatedCost.StringFixed(2)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO restock_requests (product_id, requested_by, requested_quantity,
		                               current_quantity, notes, supplier, estimated_cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		productID, actor.UserID, quantity, product.StockQuantity,
		notes, nullIfEmpty(supplier), cost,
	)
	if err != nil {
		return nil, fmt.Errorf("creating restock request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting restock request id: %w", err)
	}

	return GetRestockRequest(ctx, db, id)
}

const restockColumns = `r.id, r.product_id, r.requested_by, r.approved_by,
	r.requested_quantity, r.current_quantity, r.status, r.notes, r.supplier,
	r.estimated_cost, r.created_at, r.updated_at, r.completed_at, p.name AS product_name`

// GetRestockRequest returns a request by ID.
func GetRestockRequest(ctx context.Context, db *sql.DB, id int64) (*model.RestockRequest, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+restockColumns+`
		 FROM restock_requests r JOIN products p ON p.id = r.product_id
		 WHERE r.id = ?`, id,
	)
	req, err := scanRestockRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting restock request: %w", err)
	}
	return req, nil
}

// ListRestockRequests returns requests newest first, optionally filtered by
// status and product. Non-staff actors only see their own requests.
func ListRestockRequests(ctx context.Context, db *sql.DB, status string,
	productID int64, actor *model.Actor) ([]model.RestockRequest, error) {

	query := `SELECT ` + restockColumns + `
	          FROM restock_requests r JOIN products p ON p.id = r.product_id
	          WHERE 1=1`
	var args []any

	if status != "" {
		query += ` AND r.status = ?`
		args = append(args, status)
	}
	if productID > 0 {
		query += ` AND r.product_id = ?`
		args = append(args, productID)
	}
	if !actor.IsStaff() {
		if actor == nil {
			return nil, &model.ForbiddenError{Action: "list restock requests"}
		}
		query += ` AND r.requested_by = ?`
		args = append(args, actor.UserID)
	}

	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing restock requests: %w", err)
	}
	defer rows.Close()

	var requests []model.RestockRequest
	for rows.Next() {
		req, err := scanRestockRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning restock request: %w", err)
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// TransitionRestockRequest moves a request through its state machine:
//
//	pending  -> approved | rejected | cancelled
//	approved -> completed | cancelled
//
// Approve, reject, and complete require a pharmacist or admin. Cancel is
// allowed for the original requester as well. Completing triggers the actual
// restock in the same transaction.
func TransitionRestockRequest(ctx context.Context, db *sql.DB, bus *events.Bus,
	requestID int64, action, notes string, actor *model.Actor) (*model.RestockRequest, error) {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var productID, requestedBy int64
	var quantity int
	err = tx.QueryRowContext(ctx,
		`SELECT status, product_id, requested_by, requested_quantity
		 FROM restock_requests WHERE id = ?`, requestID,
	).Scan(&status, &productID, &requestedBy, &quantity)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Entity: "restock request", ID: requestID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading restock request: %w", err)
	}

	var change *stockChange

	switch action {
	case model.RestockActionApprove, model.RestockActionReject:
		if !actor.IsStaff() {
			return nil, &model.ForbiddenError{Action: action + " restock requests"}
		}
		if status != model.RestockStatusPending {
			return nil, &model.InvalidTransitionError{Entity: "restock request", Status: status, Action: action}
		}
		newStatus := model.RestockStatusApproved
		if action == model.RestockActionReject {
			newStatus = model.RestockStatusRejected
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE restock_requests
			 SET status = ?, approved_by = ?, notes = COALESCE(NULLIF(?, ''), notes),
			     updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			newStatus, actor.UserID, notes, requestID,
		)

	case model.RestockActionComplete:
		if !actor.IsStaff() {
			return nil, &model.ForbiddenError{Action: "complete restock requests"}
		}
		if status != model.RestockStatusApproved {
			return nil, &model.InvalidTransitionError{Entity: "restock request", Status: status, Action: action}
		}

		p, lockErr := lockProductForUpdate(ctx, tx, productID)
		if lockErr != nil {
			return nil, lockErr
		}
		reason := fmt.Sprintf("Restock request #%d fulfilled", requestID)
		change, err = applyStockChange(ctx, tx, p, quantity, model.ChangeTypeRestock, reason, actor.LoggedBy())
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE restock_requests
			 SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			model.RestockStatusCompleted, requestID,
		)

	case model.RestockActionCancel:
		if !actor.IsStaff() && (actor == nil || actor.UserID != requestedBy) {
			return nil, &model.ForbiddenError{Action: "cancel this restock request"}
		}
		if status != model.RestockStatusPending && status != model.RestockStatusApproved {
			return nil, &model.InvalidTransitionError{Entity: "restock request", Status: status, Action: action}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE restock_requests
			 SET status = ?, notes = COALESCE(NULLIF(?, ''), notes), updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			model.RestockStatusCancelled, notes, requestID,
		)

	default:
		return nil, &model.ValidationError{Field: "action", Reason: "unknown action"}
	}

	if err != nil {
		return nil, fmt.Errorf("transitioning restock request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing restock transition: %w", err)
	}

	if change != nil {
		bus.Publish(events.StockEvent{
			Type:           model.ChangeTypeRestock,
			ProductID:      productID,
			ChangeAmount:   quantity,
			NewQuantity:    change.NewQuantity,
			AlertTriggered: change.AlertTriggered,
		})
	}

	return GetRestockRequest(ctx, db, requestID)
}

func scanRestockRequest(row interface{ Scan(...any) error }) (*model.RestockRequest, error) {
	req := &model.RestockRequest{}
	var approvedBy sql.NullInt64
	var notes, supplier, cost sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&req.ID, &req.ProductID, &req.RequestedBy, &approvedBy,
		&req.RequestedQuantity, &req.CurrentQuantity, &req.Status, &notes, &supplier,
		&cost, &req.CreatedAt, &req.UpdatedAt, &completedAt, &req.ProductName)
	if err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		id := approvedBy.Int64
		req.ApprovedBy = &id
	}
	req.Notes = notes.String
	req.Supplier = supplier.String
	if cost.Valid {
		c, err := decimal.NewFromString(cost.String)
		if err != nil {
			return nil, fmt.Errorf("parsing estimated cost: %w", err)
		}
		req.EstimatedCost = &c
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	return req, nil
}
