package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/money"
)

// Orders. Quick-sale orders are written by dispensing.go inside the sale
// transaction; this file covers the customer-order lifecycle.

// CreateOrder places a customer order. Unit prices are snapshotted from the
// catalog at order time; stock is only deducted later, when the delivered
// order is dispensed.
func CreateOrder(ctx context.Context, db *sql.DB, userID int64, items []SaleItemInput,
	deliveryAddress, notes string) (*model.Order, error) {

	if err := validateItemInputs(items); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, total_amount, delivery_address, notes)
		 VALUES (?, '0.00', ?, ?)`,
		userID, nullIfEmpty(deliveryAddress), nullIfEmpty(notes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	total := money.Zero
	for _, item := range items {
		var name string
		var unitPrice decimal.Decimal
		var active bool
		err := tx.QueryRowContext(ctx,
			`SELECT name, price, is_active FROM products WHERE id = ?`, item.ProductID,
		).Scan(&name, &unitPrice, &active)
		if err == sql.ErrNoRows {
			return nil, &model.NotFoundError{Entity: "product", ID: item.ProductID}
		}
		if err != nil {
			return nil, fmt.Errorf("getting product %d: %w", item.ProductID, err)
		}
		if !active {
			return nil, &model.ValidationError{Field: "product_id",
				Reason: fmt.Sprintf("product %q is discontinued", name)}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES (?, ?, ?, ?)`,
			orderID, item.ProductID, item.Quantity, unitPrice.StringFixed(2),
		)
		if err != nil {
			return nil, fmt.Errorf("creating order item: %w", err)
		}
		total = total.Add(money.ItemTotal(item.Quantity, unitPrice))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET total_amount = ? WHERE id = ?`,
		total.StringFixed(2), orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating order total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return GetOrder(ctx, db, orderID)
}

// GetOrder returns an order with its line items.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*model.Order, error) {
	o := &model.Order{}
	var deliveryAddress, notes sql.NullString
	var paymentID sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT o.id, o.user_id, o.total_amount, o.status, o.delivery_address, o.notes,
		        o.created_at, o.updated_at, p.id AS payment_id
		 FROM orders o LEFT JOIN payments p ON p.order_id = o.id
		 WHERE o.id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &deliveryAddress, &notes,
		&o.CreatedAt, &o.UpdatedAt, &paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o.DeliveryAddress = deliveryAddress.String
	o.Notes = notes.String
	if paymentID.Valid {
		v := paymentID.Int64
		o.PaymentID = &v
	}

	rows, err := db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
		        oi.created_at, p.name AS product_name
		 FROM order_items oi JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ?
		 ORDER BY oi.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.CreatedAt, &item.ProductName); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// ListOrders returns orders newest first. A zero userID lists all orders;
// otherwise only that user's.
func ListOrders(ctx context.Context, db *sql.DB, userID int64, status string) ([]model.Order, error) {
	query := `SELECT o.id, o.user_id, o.total_amount, o.status, o.delivery_address, o.notes,
	                 o.created_at, o.updated_at, p.id AS payment_id
	          FROM orders o LEFT JOIN payments p ON p.order_id = o.id
	          WHERE 1=1`
	var args []any

	if userID > 0 {
		query += ` AND o.user_id = ?`
		args = append(args, userID)
	}
	if status != "" {
		query += ` AND o.status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var deliveryAddress, notes sql.NullString
		var paymentID sql.NullInt64
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &deliveryAddress,
			&notes, &o.CreatedAt, &o.UpdatedAt, &paymentID); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		o.DeliveryAddress = deliveryAddress.String
		o.Notes = notes.String
		if paymentID.Valid {
			v := paymentID.Int64
			o.PaymentID = &v
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus advances a customer order through its lifecycle. The only
// legal moves are pending -> confirmed -> shipped -> delivered, plus
// cancellation before shipping.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, newStatus string, actor *model.Actor) (*model.Order, error) {
	if !actor.IsStaff() {
		return nil, &model.ForbiddenError{Action: "update order status"}
	}

	o, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &model.NotFoundError{Entity: "order", ID: id}
	}

	allowed := map[string][]string{
		model.OrderStatusPending:   {model.OrderStatusConfirmed, model.OrderStatusCancelled},
		model.OrderStatusConfirmed: {model.OrderStatusShipped, model.OrderStatusCancelled},
		model.OrderStatusShipped:   {model.OrderStatusDelivered},
	}
	ok := false
	for _, s := range allowed[o.Status] {
		if s == newStatus {
			ok = true
			break
		}
	}
	if !ok {
		return nil, &model.InvalidTransitionError{Entity: "order", Status: o.Status, Action: newStatus}
	}

	_, err = db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newStatus, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating order status: %w", err)
	}

	return GetOrder(ctx, db, id)
}
