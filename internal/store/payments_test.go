package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/db"
	"github.com/dawapos/dawapos/internal/model"
)

func seedOrder(t *testing.T, db *sql.DB, userID, productID int64) *model.Order {
	t.Helper()
	order, err := CreateOrder(context.Background(), db, userID,
		[]SaleItemInput{{ProductID: productID, Quantity: 2}}, "", "")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	return order
}

func TestCreatePayment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	order := seedOrder(t, database, customer.UserID, product.ID)

	payment, err := CreatePayment(ctx, database, order.ID, model.PaymentMethodMpesa,
		order.TotalAmount, "ws_CO_123")
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if payment.Status != model.PaymentStatusInitiated {
		t.Errorf("expected initiated, got %s", payment.Status)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected amount 5.00, got %s", payment.Amount)
	}
	if payment.Reference != "ws_CO_123" {
		t.Errorf("expected reference, got %q", payment.Reference)
	}

	// The order now carries the payment.
	updated, _ := GetOrder(ctx, database, order.ID)
	if updated.PaymentID == nil || *updated.PaymentID != payment.ID {
		t.Errorf("expected payment %d on order, got %v", payment.ID, updated.PaymentID)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	order := seedOrder(t, database, customer.UserID, product.ID)

	if _, err := CreatePayment(ctx, database, order.ID, "barter", order.TotalAmount, "x"); !model.IsValidation(err) {
		t.Errorf("expected validation error for unknown method, got %v", err)
	}
	if _, err := CreatePayment(ctx, database, order.ID, model.PaymentMethodCash, decimal.Zero, "x"); !model.IsValidation(err) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}
}

func TestSettlePayment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	order := seedOrder(t, database, customer.UserID, product.ID)

	payment, _ := CreatePayment(ctx, database, order.ID, model.PaymentMethodMpesa,
		order.TotalAmount, "ws_CO_123")

	settled, err := SettlePayment(ctx, database, payment.ID, model.PaymentStatusCompleted, "ABC123XYZ", "")
	if err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	if settled.Status != model.PaymentStatusCompleted || settled.TransactionID != "ABC123XYZ" {
		t.Errorf("unexpected payment: %+v", settled)
	}

	// Settled payments are final.
	if _, err := SettlePayment(ctx, database, payment.ID, model.PaymentStatusFailed, "", ""); !model.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestGetPaymentByReference(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	order := seedOrder(t, database, customer.UserID, product.ID)

	payment, _ := CreatePayment(ctx, database, order.ID, model.PaymentMethodStripe,
		order.TotalAmount, "pi_42")

	found, err := GetPaymentByReference(ctx, database, "pi_42")
	if err != nil {
		t.Fatalf("GetPaymentByReference: %v", err)
	}
	if found == nil || found.ID != payment.ID {
		t.Errorf("expected payment %d, got %+v", payment.ID, found)
	}

	missing, err := GetPaymentByReference(ctx, database, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown reference, got %+v, %v", missing, err)
	}
}

func TestListPaymentsForUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice", model.RoleCustomer)
	bob := seedUser(t, database, "bob", model.RoleCustomer)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)

	aliceOrder := seedOrder(t, database, alice.UserID, product.ID)
	bobOrder := seedOrder(t, database, bob.UserID, product.ID)
	CreatePayment(ctx, database, aliceOrder.ID, model.PaymentMethodMpesa, aliceOrder.TotalAmount, "a1")
	CreatePayment(ctx, database, bobOrder.ID, model.PaymentMethodMpesa, bobOrder.TotalAmount, "b1")

	payments, err := ListPaymentsForUser(ctx, database, alice.UserID)
	if err != nil {
		t.Fatalf("ListPaymentsForUser: %v", err)
	}
	if len(payments) != 1 || payments[0].OrderID != aliceOrder.ID {
		t.Errorf("expected only alice's payment, got %+v", payments)
	}
}
