package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dawapos/dawapos/internal/model"
)

// Product catalog. Everything here reads or edits product metadata; the
// stock_quantity column is written only by the inventory functions so that
// every change produces a ledger entry.

// ProductFilter narrows ListProducts results.
type ProductFilter struct {
	Category   string
	LowStock   bool // stock at or below threshold, but not zero
	OutOfStock bool
}

const productColumns = `id, name, description, category, price, stock_quantity,
	reorder_threshold, supplier, expiry_date, image_mime, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	p := &model.Product{}
	var description, supplier, imageMime sql.NullString
	var expiry sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &description, &p.Category, &p.Price,
		&p.StockQuantity, &p.ReorderThreshold, &supplier, &expiry, &imageMime,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Supplier = supplier.String
	p.ImageMime = imageMime.String
	if expiry.Valid {
		t := expiry.Time
		p.ExpiryDate = &t
	}
	return p, nil
}

// CreateProduct creates a new product. Initial stock must be set through
// an inventory restock so that the ledger starts at the right place.
func CreateProduct(ctx context.Context, db *sql.DB, p *model.Product) (*model.Product, error) {
	if p.Name == "" {
		return nil, &model.ValidationError{Field: "name", Reason: "required"}
	}
	if !model.ValidCategory(p.Category) {
		return nil, &model.ValidationError{Field: "category", Reason: "unknown category"}
	}
	if p.Price.IsNegative() {
		return nil, &model.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.ReorderThreshold < 0 {
		return nil, &model.ValidationError{Field: "reorder_threshold", Reason: "must not be negative"}
	}
	if p.ReorderThreshold == 0 {
		p.ReorderThreshold = 10
	}

	// New products always start active.
	result, err := db.ExecContext(ctx,
		`INSERT INTO products (name, description, category, price, reorder_threshold, supplier, expiry_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Category, p.Price.StringFixed(2), p.ReorderThreshold,
		nullIfEmpty(p.Supplier), p.ExpiryDate,
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return GetProduct(ctx, db, id)
}

// GetProduct returns a product by ID.
func GetProduct(ctx context.Context, db *sql.DB, id int64) (*model.Product, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns active products matching the filter, ordered by name.
func ListProducts(ctx context.Context, db *sql.DB, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_active = 1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.LowStock {
		query += ` AND stock_quantity <= reorder_threshold AND stock_quantity > 0`
	}
	if filter.OutOfStock {
		query += ` AND stock_quantity = 0`
	}

	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's metadata. Stock is deliberately not part
// of this statement.
func UpdateProduct(ctx context.Context, db *sql.DB, p *model.Product) error {
	if p.Price.IsNegative() {
		return &model.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if !model.ValidCategory(p.Category) {
		return &model.ValidationError{Field: "category", Reason: "unknown category"}
	}

	// is_active is owned by DeactivateProduct.
	_, err := db.ExecContext(ctx,
		`UPDATE products SET name = ?, description = ?, category = ?, price = ?,
		        reorder_threshold = ?, supplier = ?, expiry_date = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.Name, p.Description, p.Category, p.Price.StringFixed(2), p.ReorderThreshold,
		nullIfEmpty(p.Supplier), p.ExpiryDate, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return nil
}

// DeactivateProduct hides a product from the catalog. Products are never
// hard-deleted; the stock ledger keeps referencing them.
func DeactivateProduct(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating product: %w", err)
	}
	return nil
}

// SetProductImage sets a product's image data.
func SetProductImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return nil
}

// GetProductImage returns a product's image data and MIME type.
func GetProductImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM products WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return image, mime.String, nil
}

// InventorySummary holds the pharmacist dashboard counters.
type InventorySummary struct {
	TotalProducts   int `json:"total_products"`
	LowStockItems   int `json:"low_stock_items"`
	OutOfStockItems int `json:"out_of_stock_items"`
}

// GetInventorySummary returns counts of active, low-stock, and out-of-stock
// products.
func GetInventorySummary(ctx context.Context, db *sql.DB) (*InventorySummary, error) {
	s := &InventorySummary{}
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(CASE WHEN stock_quantity <= reorder_threshold AND stock_quantity > 0 THEN 1 END),
		        COUNT(CASE WHEN stock_quantity = 0 THEN 1 END)
		 FROM products WHERE is_active = 1`,
	).Scan(&s.TotalProducts, &s.LowStockItems, &s.OutOfStockItems)
	if err != nil {
		return nil, fmt.Errorf("getting inventory summary: %w", err)
	}
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
