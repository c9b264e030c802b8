package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/model"
)

// Shared fixtures. Stock log and audit columns reference users, so every
// actor in a test is backed by a real row.

func seedUser(t *testing.T, db *sql.DB, username, role string) *model.Actor {
	t.Helper()
	u, err := CreateUser(context.Background(), db, username, "", "not-a-real-hash", role)
	if err != nil {
		t.Fatalf("creating %s user: %v", role, err)
	}
	return &model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func seedPharmacist(t *testing.T, db *sql.DB) *model.Actor {
	return seedUser(t, db, "pharmacist", model.RolePharmacist)
}

func seedAdmin(t *testing.T, db *sql.DB) *model.Actor {
	return seedUser(t, db, "admin", model.RoleAdmin)
}

func seedCustomer(t *testing.T, db *sql.DB) *model.Actor {
	return seedUser(t, db, "customer", model.RoleCustomer)
}

func seedProduct(t *testing.T, db *sql.DB, name, price string, threshold int) *model.Product {
	t.Helper()
	p, err := CreateProduct(context.Background(), db, &model.Product{
		Name:             name,
		Category:         model.CategoryPainRelief,
		Price:            decimal.RequireFromString(price),
		ReorderThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("creating product %s: %v", name, err)
	}
	return p
}

func seedStock(t *testing.T, db *sql.DB, actor *model.Actor, productID int64, quantity int) {
	t.Helper()
	if _, err := RestockProduct(context.Background(), db, nil, productID, quantity, "initial stock", actor); err != nil {
		t.Fatalf("seeding stock: %v", err)
	}
}
