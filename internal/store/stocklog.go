package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dawapos/dawapos/internal/model"
)

// Stock ledger. appendStockLog is the only writer and runs inside the
// mutation's transaction; there is no update or delete.

// appendStockLog inserts a ledger entry and returns its ID and whether the
// low-stock alert fired. The alert fires on any decrease that leaves stock
// below the reorder threshold.
func appendStockLog(ctx context.Context, tx *sql.Tx, productID int64,
	previous, next, change int, changeType, reason string, loggedBy *int64,
	reorderThreshold int) (int64, bool, error) {

	alert := change < 0 && next < reorderThreshold

	result, err := tx.ExecContext(ctx,
		`INSERT INTO stock_logs (product_id, previous_quantity, new_quantity, change_amount,
		                         change_type, reason, logged_by, alert_triggered)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		productID, previous, next, change, changeType, reason, loggedBy, alert,
	)
	if err != nil {
		return 0, false, fmt.Errorf("appending stock log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("getting stock log id: %w", err)
	}
	return id, alert, nil
}

const stockLogColumns = `sl.id, sl.product_id, sl.previous_quantity, sl.new_quantity,
	sl.change_amount, sl.change_type, sl.reason, sl.logged_by, sl.timestamp,
	sl.alert_triggered, p.name AS product_name`

// ListStockLogs returns the ledger for a product, newest first.
func ListStockLogs(ctx context.Context, db *sql.DB, productID int64) ([]model.StockLogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+stockLogColumns+`
		 FROM stock_logs sl JOIN products p ON p.id = sl.product_id
		 WHERE sl.product_id = ?
		 ORDER BY sl.timestamp DESC, sl.id DESC`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock logs: %w", err)
	}
	defer rows.Close()

	return scanStockLogs(rows)
}

// ListStockLogsByType returns all ledger entries of one change type, newest first.
func ListStockLogsByType(ctx context.Context, db *sql.DB, changeType string) ([]model.StockLogEntry, error) {
	if !model.ValidChangeType(changeType) {
		return nil, &model.ValidationError{Field: "change_type", Reason: "unknown change type"}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+stockLogColumns+`
		 FROM stock_logs sl JOIN products p ON p.id = sl.product_id
		 WHERE sl.change_type = ?
		 ORDER BY sl.timestamp DESC, sl.id DESC`, changeType,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock logs by type: %w", err)
	}
	defer rows.Close()

	return scanStockLogs(rows)
}

// ListStockLogsInRange returns ledger entries between start and end, oldest first.
func ListStockLogsInRange(ctx context.Context, db *sql.DB, start, end time.Time) ([]model.StockLogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+stockLogColumns+`
		 FROM stock_logs sl JOIN products p ON p.id = sl.product_id
		 WHERE sl.timestamp >= ? AND sl.timestamp <= ?
		 ORDER BY sl.timestamp, sl.id`, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock logs in range: %w", err)
	}
	defer rows.Close()

	return scanStockLogs(rows)
}

func scanStockLogs(rows *sql.Rows) ([]model.StockLogEntry, error) {
	var entries []model.StockLogEntry
	for rows.Next() {
		var e model.StockLogEntry
		var reason sql.NullString
		var loggedBy sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ProductID, &e.PreviousQuantity, &e.NewQuantity,
			&e.ChangeAmount, &e.ChangeType, &reason, &loggedBy, &e.Timestamp,
			&e.AlertTriggered, &e.ProductName); err != nil {
			return nil, fmt.Errorf("scanning stock log: %w", err)
		}
		e.Reason = reason.String
		if loggedBy.Valid {
			id := loggedBy.Int64
			e.LoggedBy = &id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
