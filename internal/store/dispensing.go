package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/money"
)

// Dispensing turns a basket of line items into a committed sale with
// consistent stock effects. Every path (OTC, prescription, quick sale) runs
// the same two phases inside one transaction: validate every item first, then
// deduct and record per item. A failure anywhere rolls the whole sale back.

// SaleItemInput is one requested line of a sale.
type SaleItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// DispenseInput describes a sale to commit.
type DispenseInput struct {
	SaleType       string
	PrescriptionID *int64
	PatientName    string
	Notes          string
	Items          []SaleItemInput
}

// Dispense commits an OTC or prescription sale. For prescription sales the
// prescription must be in verified status; a successful commit moves it to
// dispensed.
func Dispense(ctx context.Context, db *sql.DB, bus *events.Bus,
	input DispenseInput, actor *model.Actor) (*model.Dispensation, error) {

	if !actor.IsStaff() {
		return nil, &model.ForbiddenError{Action: "dispense medicines"}
	}
	if input.SaleType != model.SaleTypeOTC && input.SaleType != model.SaleTypePrescription {
		return nil, &model.ValidationError{Field: "sale_type", Reason: "must be otc or prescription"}
	}
	if input.SaleType == model.SaleTypePrescription && input.PrescriptionID == nil {
		return nil, &model.ValidationError{Field: "prescription_id", Reason: "required for prescription sales"}
	}
	if err := validateItemInputs(input.Items); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Prescription handoff guard: checked before any inventory mutation.
	if input.PrescriptionID != nil {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM prescriptions WHERE id = ?`, *input.PrescriptionID,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, &model.NotFoundError{Entity: "prescription", ID: *input.PrescriptionID}
		}
		if err != nil {
			return nil, fmt.Errorf("reading prescription: %w", err)
		}
		if status != model.PrescriptionStatusVerified {
			return nil, &model.InvalidTransitionError{Entity: "prescription", Status: status, Action: "dispense"}
		}
	}

	// Phase 1: lock and validate every product before touching any stock.
	products, err := validateSaleItems(ctx, tx, input.Items)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO dispensations (sale_type, prescription_id, patient_name, dispensed_by, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		input.SaleType, input.PrescriptionID, input.PatientName, actor.UserID, input.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispensation: %w", err)
	}
	dispensationID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting dispensation id: %w", err)
	}

	// Phase 2: deduct stock and record each line.
	reason := fmt.Sprintf("Dispensed in %s sale #%d", input.SaleType, dispensationID)
	total, stockEvents, err := commitSaleItems(ctx, tx, dispensationID, input.Items, products, reason, actor)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE dispensations SET total_amount = ? WHERE id = ?`,
		total.StringFixed(2), dispensationID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalizing dispensation total: %w", err)
	}

	if input.PrescriptionID != nil {
		if err := markPrescriptionDispensed(ctx, tx, *input.PrescriptionID, input.Items); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing dispensation: %w", err)
	}

	for _, e := range stockEvents {
		bus.Publish(e)
	}

	return GetDispensation(ctx, db, dispensationID)
}

// QuickSale commits a staff point-of-sale transaction: an order pre-set to
// delivered, the dispensation with its stock effects, and a completed cash
// payment, all in one transaction.
func QuickSale(ctx context.Context, db *sql.DB, bus *events.Bus,
	items []SaleItemInput, notes string, actor *model.Actor) (*model.Order, error) {

	if !actor.IsStaff() {
		return nil, &model.ForbiddenError{Action: "make quick sales"}
	}
	if err := validateItemInputs(items); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	products, err := validateSaleItems(ctx, tx, items)
	if err != nil {
		return nil, err
	}

	// Quick sales are delivered immediately.
	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, status, notes) VALUES (?, ?, ?)`,
		actor.UserID, model.OrderStatusDelivered, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES (?, ?, ?, ?)`,
			orderID, item.ProductID, item.Quantity, products[item.ProductID].Price.StringFixed(2),
		)
		if err != nil {
			return nil, fmt.Errorf("creating order item: %w", err)
		}
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO dispensations (sale_type, order_id, dispensed_by, notes)
		 VALUES (?, ?, ?, ?)`,
		model.SaleTypeOTC, orderID, actor.UserID, fmt.Sprintf("Quick sale by %s", actor.Username),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispensation: %w", err)
	}
	dispensationID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting dispensation id: %w", err)
	}

	reason := fmt.Sprintf("Quick sale order #%d", orderID)
	total, stockEvents, err := commitSaleItems(ctx, tx, dispensationID, items, products, reason, actor)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE dispensations SET total_amount = ? WHERE id = ?`,
		total.StringFixed(2), dispensationID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalizing dispensation total: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET total_amount = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		total.StringFixed(2), orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalizing order total: %w", err)
	}

	// Cash is collected at the counter; this is bookkeeping, not a gateway
	// call, so it belongs inside the sale transaction.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (order_id, method, status, amount, reference, transaction_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		orderID, model.PaymentMethodCash, model.PaymentStatusCompleted,
		total.StringFixed(2), fmt.Sprintf("CASH-%d", orderID), uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating payment record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing quick sale: %w", err)
	}

	for _, e := range stockEvents {
		bus.Publish(e)
	}

	return GetOrder(ctx, db, orderID)
}

func validateItemInputs(items []SaleItemInput) error {
	if len(items) == 0 {
		return &model.ValidationError{Field: "items", Reason: "at least one item required"}
	}
	for _, item := range items {
		if item.ProductID <= 0 {
			return &model.ValidationError{Field: "product_id", Reason: "required"}
		}
		if item.Quantity <= 0 {
			return &model.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
	}
	return nil
}

// validateSaleItems locks every product in the basket and confirms it is
// active with enough stock. Each product is locked and read once, even when
// it appears on several lines; the lines' quantities are summed against that
// single snapshot. Nothing is mutated; if any item fails, the caller rolls
// back and no product has changed.
func validateSaleItems(ctx context.Context, tx *sql.Tx, items []SaleItemInput) (map[int64]*lockedProduct, error) {
	products := make(map[int64]*lockedProduct, len(items))
	needed := make(map[int64]int, len(items))
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			var err error
			p, err = lockProductForUpdate(ctx, tx, item.ProductID)
			if err != nil {
				return nil, err
			}
			products[item.ProductID] = p
		}
		if !p.IsActive {
			return nil, &model.ValidationError{Field: "product_id",
				Reason: fmt.Sprintf("product %s is not active", p.Name)}
		}
		needed[item.ProductID] += item.Quantity
		if p.StockQuantity < needed[item.ProductID] {
			return nil, &model.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   needed[item.ProductID],
				Available:   p.StockQuantity,
			}
		}
	}
	return products, nil
}

// commitSaleItems deducts stock and writes the dispensation line for each
// item. The deduction and the line record share the transaction; the line
// references the ledger entry its deduction produced. Lines for the same
// product share one snapshot, which applyStockChange advances, so each
// deduction and its ledger entry start from the previous line's result.
func commitSaleItems(ctx context.Context, tx *sql.Tx, dispensationID int64,
	items []SaleItemInput, products map[int64]*lockedProduct, reason string,
	actor *model.Actor) (decimal.Decimal, []events.StockEvent, error) {

	total := decimal.Zero
	stockEvents := make([]events.StockEvent, 0, len(items))

	for _, item := range items {
		p := products[item.ProductID]

		change, err := applyStockChange(ctx, tx, p, -item.Quantity, model.ChangeTypeSale, reason, actor.LoggedBy())
		if err != nil {
			return decimal.Zero, nil, err
		}

		lineTotal := money.ItemTotal(item.Quantity, p.Price)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO dispensation_items (dispensation_id, product_id, quantity,
			                                 price_per_unit, total_price, expiry_date, stock_log_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			dispensationID, p.ID, item.Quantity, p.Price.StringFixed(2),
			lineTotal.StringFixed(2), p.ExpiryDate, change.LogID,
		)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("creating dispensation item: %w", err)
		}

		total = total.Add(lineTotal)
		stockEvents = append(stockEvents, events.StockEvent{
			Type:           model.ChangeTypeSale,
			ProductID:      p.ID,
			ChangeAmount:   -item.Quantity,
			NewQuantity:    change.NewQuantity,
			AlertTriggered: change.AlertTriggered,
		})
	}

	return total, stockEvents, nil
}

// markPrescriptionDispensed moves the prescription to dispensed and records
// how much of each prescribed item was actually handed out.
func markPrescriptionDispensed(ctx context.Context, tx *sql.Tx, prescriptionID int64, items []SaleItemInput) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE prescriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.PrescriptionStatusDispensed, prescriptionID,
	)
	if err != nil {
		return fmt.Errorf("marking prescription dispensed: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`UPDATE prescription_items SET dispensed_quantity = dispensed_quantity + ?
			 WHERE prescription_id = ? AND product_id = ?`,
			item.Quantity, prescriptionID, item.ProductID,
		)
		if err != nil {
			return fmt.Errorf("updating prescription item: %w", err)
		}
	}
	return nil
}

// GetDispensation returns a sale header with its line items.
func GetDispensation(ctx context.Context, db *sql.DB, id int64) (*model.Dispensation, error) {
	d := &model.Dispensation{}
	var prescriptionID, orderID sql.NullInt64
	var patientName, notes sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, sale_type, prescription_id, order_id, patient_name, dispensed_by,
		        dispensed_at, total_amount, notes
		 FROM dispensations WHERE id = ?`, id,
	).Scan(&d.ID, &d.SaleType, &prescriptionID, &orderID, &patientName,
		&d.DispensedBy, &d.DispensedAt, &d.TotalAmount, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting dispensation: %w", err)
	}
	if prescriptionID.Valid {
		v := prescriptionID.Int64
		d.PrescriptionID = &v
	}
	if orderID.Valid {
		v := orderID.Int64
		d.OrderID = &v
	}
	d.PatientName = patientName.String
	d.Notes = notes.String

	rows, err := db.QueryContext(ctx,
		`SELECT di.id, di.dispensation_id, di.product_id, di.quantity, di.price_per_unit,
		        di.total_price, di.expiry_date, di.stock_log_id, p.name AS product_name
		 FROM dispensation_items di JOIN products p ON p.id = di.product_id
		 WHERE di.dispensation_id = ?
		 ORDER BY di.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting dispensation items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.DispensationItem
		var expiry sql.NullTime
		if err := rows.Scan(&item.ID, &item.DispensationID, &item.ProductID, &item.Quantity,
			&item.PricePerUnit, &item.TotalPrice, &expiry, &item.StockLogID, &item.ProductName); err != nil {
			return nil, fmt.Errorf("scanning dispensation item: %w", err)
		}
		if expiry.Valid {
			t := expiry.Time
			item.ExpiryDate = &t
		}
		d.Items = append(d.Items, item)
	}
	return d, rows.Err()
}

// ListDispensations returns sale headers newest first.
func ListDispensations(ctx context.Context, db *sql.DB, saleType string) ([]model.Dispensation, error) {
	query := `SELECT id, sale_type, prescription_id, order_id, patient_name, dispensed_by,
	                 dispensed_at, total_amount, notes
	          FROM dispensations`
	var args []any
	if saleType != "" {
		query += ` WHERE sale_type = ?`
		args = append(args, saleType)
	}
	query += ` ORDER BY dispensed_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing dispensations: %w", err)
	}
	defer rows.Close()

	var dispensations []model.Dispensation
	for rows.Next() {
		var d model.Dispensation
		var prescriptionID, orderID sql.NullInt64
		var patientName, notes sql.NullString
		if err := rows.Scan(&d.ID, &d.SaleType, &prescriptionID, &orderID, &patientName,
			&d.DispensedBy, &d.DispensedAt, &d.TotalAmount, &notes); err != nil {
			return nil, fmt.Errorf("scanning dispensation: %w", err)
		}
		if prescriptionID.Valid {
			v := prescriptionID.Int64
			d.PrescriptionID = &v
		}
		if orderID.Valid {
			v := orderID.Int64
			d.OrderID = &v
		}
		d.PatientName = patientName.String
		d.Notes = notes.String
		dispensations = append(dispensations, d)
	}
	return dispensations, rows.Err()
}

// ListDispensingLog reads the quick-sale reporting view, newest first.
func ListDispensingLog(ctx context.Context, db *sql.DB) ([]model.DispensingLogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, product_id, product_name, quantity, dispensed_by, order_id,
		        previous_stock, new_stock, total_cost, created_at
		 FROM dispensing_log
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dispensing log: %w", err)
	}
	defer rows.Close()

	var entries []model.DispensingLogEntry
	for rows.Next() {
		var e model.DispensingLogEntry
		var orderID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ProductName, &e.Quantity,
			&e.DispensedBy, &orderID, &e.PreviousStock, &e.NewStock, &e.TotalCost, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dispensing log entry: %w", err)
		}
		if orderID.Valid {
			v := orderID.Int64
			e.OrderID = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DispensingStats aggregates sales for the dashboard.
type DispensingStats struct {
	TodaySales        int             `json:"today_sales"`
	TodayRevenue      decimal.Decimal `json:"today_revenue"`
	MonthSales        int             `json:"month_sales"`
	MonthRevenue      decimal.Decimal `json:"month_revenue"`
	MonthOTC          int             `json:"month_otc"`
	MonthPrescription int             `json:"month_prescription"`
	TopProducts       []TopProduct    `json:"top_products"`
}

// TopProduct is one line of the 30-day best-sellers list.
type TopProduct struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// GetDispensingStats returns sale counts and revenue for today and the last
// 30 days.
func GetDispensingStats(ctx context.Context, db *sql.DB) (*DispensingStats, error) {
	s := &DispensingStats{}
	var todayRevenue, monthRevenue sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(CASE WHEN date(dispensed_at) = date('now') THEN 1 END),
		        COALESCE(SUM(CASE WHEN date(dispensed_at) = date('now') THEN total_amount END), 0),
		        COUNT(*),
		        COALESCE(SUM(total_amount), 0),
		        COUNT(CASE WHEN sale_type = 'otc' THEN 1 END),
		        COUNT(CASE WHEN sale_type = 'prescription' THEN 1 END)
		 FROM dispensations
		 WHERE dispensed_at >= datetime('now', '-30 days')`,
	).Scan(&s.TodaySales, &todayRevenue, &s.MonthSales, &monthRevenue, &s.MonthOTC, &s.MonthPrescription)
	if err != nil {
		return nil, fmt.Errorf("getting dispensing stats: %w", err)
	}

	if todayRevenue.Valid {
		if s.TodayRevenue, err = decimal.NewFromString(todayRevenue.String); err != nil {
			return nil, fmt.Errorf("parsing today revenue: %w", err)
		}
	}
	if monthRevenue.Valid {
		if s.MonthRevenue, err = decimal.NewFromString(monthRevenue.String); err != nil {
			return nil, fmt.Errorf("parsing month revenue: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.name, SUM(di.quantity)
		 FROM dispensation_items di
		 JOIN dispensations d ON d.id = di.dispensation_id
		 JOIN products p ON p.id = di.product_id
		 WHERE d.dispensed_at >= datetime('now', '-30 days')
		 GROUP BY p.id, p.name
		 ORDER BY SUM(di.quantity) DESC, p.id
		 LIMIT 5`,
	)
	if err != nil {
		return nil, fmt.Errorf("getting top products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tp TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.ProductName, &tp.Quantity); err != nil {
			return nil, fmt.Errorf("scanning top product: %w", err)
		}
		s.TopProducts = append(s.TopProducts, tp)
	}
	return s, rows.Err()
}
