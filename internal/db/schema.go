package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    email         TEXT,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('admin', 'pharmacist', 'customer')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS products (
    id                INTEGER PRIMARY KEY,
    name              TEXT NOT NULL,
    description       TEXT,
    category          TEXT NOT NULL DEFAULT 'other'
        CHECK (category IN ('pain_relief', 'antibiotics', 'vitamins', 'chronic_care', 'dermatology', 'other')),
    price             TEXT NOT NULL DEFAULT '0.00',
    stock_quantity    INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
    reorder_threshold INTEGER NOT NULL DEFAULT 10 CHECK (reorder_threshold >= 0),
    supplier          TEXT,
    expiry_date       DATE,
    image             BLOB,
    image_mime        TEXT,
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active);

-- Append-only stock ledger. Products cannot be deleted while entries
-- reference them.
CREATE TABLE IF NOT EXISTS stock_logs (
    id                INTEGER PRIMARY KEY,
    product_id        INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    previous_quantity INTEGER NOT NULL,
    new_quantity      INTEGER NOT NULL,
    change_amount     INTEGER NOT NULL,
    change_type       TEXT NOT NULL CHECK (change_type IN ('restock', 'sale', 'adjustment', 'expiry')),
    reason            TEXT,
    logged_by         INTEGER REFERENCES users(id),
    timestamp         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    alert_triggered   INTEGER NOT NULL DEFAULT 0,
    CHECK (new_quantity = previous_quantity + change_amount)
);

CREATE INDEX IF NOT EXISTS idx_stock_logs_product_time ON stock_logs(product_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_stock_logs_change_type ON stock_logs(change_type);

CREATE TABLE IF NOT EXISTS restock_requests (
    id                 INTEGER PRIMARY KEY,
    product_id         INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    requested_by       INTEGER NOT NULL REFERENCES users(id),
    approved_by        INTEGER REFERENCES users(id),
    requested_quantity INTEGER NOT NULL CHECK (requested_quantity > 0),
    current_quantity   INTEGER NOT NULL,
    status             TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'approved', 'rejected', 'completed', 'cancelled')),
    notes              TEXT,
    supplier           TEXT,
    estimated_cost     TEXT,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_restock_requests_status ON restock_requests(status);

CREATE TABLE IF NOT EXISTS prescriptions (
    id                INTEGER PRIMARY KEY,
    patient_name      TEXT NOT NULL,
    patient_age       INTEGER,
    prescriber_name   TEXT NOT NULL,
    prescription_date DATE NOT NULL,
    notes             TEXT,
    status            TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'verified', 'dispensed', 'cancelled')),
    verified_by       INTEGER REFERENCES users(id),
    created_by        INTEGER NOT NULL REFERENCES users(id),
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prescription_items (
    id                  INTEGER PRIMARY KEY,
    prescription_id     INTEGER NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
    product_id          INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    prescribed_quantity INTEGER NOT NULL CHECK (prescribed_quantity > 0),
    dispensed_quantity  INTEGER NOT NULL DEFAULT 0,
    dosage_instructions TEXT
);

CREATE TABLE IF NOT EXISTS orders (
    id               INTEGER PRIMARY KEY,
    user_id          INTEGER NOT NULL REFERENCES users(id),
    total_amount     TEXT NOT NULL DEFAULT '0.00',
    status           TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'confirmed', 'shipped', 'delivered', 'cancelled')),
    delivery_address TEXT,
    notes            TEXT,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status);

CREATE TABLE IF NOT EXISTS order_items (
    id         INTEGER PRIMARY KEY,
    order_id   INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    unit_price TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS payments (
    id             INTEGER PRIMARY KEY,
    order_id       INTEGER NOT NULL UNIQUE REFERENCES orders(id),
    method         TEXT NOT NULL CHECK (method IN ('mpesa', 'stripe', 'cash_on_delivery', 'cash')),
    status         TEXT NOT NULL DEFAULT 'initiated'
        CHECK (status IN ('initiated', 'completed', 'failed', 'cancelled', 'refunded')),
    amount         TEXT NOT NULL,
    reference      TEXT,
    transaction_id TEXT,
    notes          TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dispensations (
    id              INTEGER PRIMARY KEY,
    sale_type       TEXT NOT NULL CHECK (sale_type IN ('prescription', 'otc')),
    prescription_id INTEGER REFERENCES prescriptions(id),
    order_id        INTEGER REFERENCES orders(id),
    patient_name    TEXT,
    dispensed_by    INTEGER NOT NULL REFERENCES users(id),
    dispensed_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    total_amount    TEXT NOT NULL DEFAULT '0.00',
    notes           TEXT
);

CREATE INDEX IF NOT EXISTS idx_dispensations_time ON dispensations(dispensed_at);

CREATE TABLE IF NOT EXISTS dispensation_items (
    id              INTEGER PRIMARY KEY,
    dispensation_id INTEGER NOT NULL REFERENCES dispensations(id),
    product_id      INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    price_per_unit  TEXT NOT NULL,
    total_price     TEXT NOT NULL,
    expiry_date     DATE,
    stock_log_id    INTEGER NOT NULL REFERENCES stock_logs(id)
);

-- Quick-sale reporting projection over the canonical dispensation rows.
CREATE VIEW IF NOT EXISTS dispensing_log AS
    SELECT di.id              AS id,
           di.product_id      AS product_id,
           p.name             AS product_name,
           di.quantity        AS quantity,
           d.dispensed_by     AS dispensed_by,
           d.order_id         AS order_id,
           sl.previous_quantity AS previous_stock,
           sl.new_quantity    AS new_stock,
           di.total_price     AS total_cost,
           d.dispensed_at     AS created_at
    FROM dispensation_items di
    JOIN dispensations d ON d.id = di.dispensation_id
    JOIN stock_logs sl ON sl.id = di.stock_log_id
    JOIN products p ON p.id = di.product_id;
`

// EnsureSchema creates all tables, indexes, and views if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
