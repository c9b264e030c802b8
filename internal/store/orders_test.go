package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/db"
	"github.com/dawapos/dawapos/internal/model"
)

func TestCreateOrderSnapshotsPrices(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)

	order, err := CreateOrder(ctx, database, customer.UserID,
		[]SaleItemInput{{ProductID: product.ID, Quantity: 4}}, "Moi Avenue 12", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Status != model.OrderStatusPending {
		t.Errorf("expected pending, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected total 10.00, got %s", order.TotalAmount)
	}
	if len(order.Items) != 1 || !order.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("unexpected items: %+v", order.Items)
	}

	// A later price change must not affect the order.
	product.Price = decimal.RequireFromString("9.99")
	if err := UpdateProduct(ctx, database, product); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	again, _ := GetOrder(ctx, database, order.ID)
	if !again.TotalAmount.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected total to stay 10.00, got %s", again.TotalAmount)
	}
}

func TestCreateOrderDoesNotTouchStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	seedStock(t, database, staff, product.ID, 20)

	if _, err := CreateOrder(ctx, database, customer.UserID,
		[]SaleItemInput{{ProductID: product.ID, Quantity: 5}}, "", ""); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Stock moves at dispensing time, not at ordering time.
	p, _ := GetProduct(ctx, database, product.ID)
	if p.StockQuantity != 20 {
		t.Errorf("expected stock 20, got %d", p.StockQuantity)
	}
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	DeactivateProduct(ctx, database, product.ID)

	_, err := CreateOrder(ctx, database, customer.UserID,
		[]SaleItemInput{{ProductID: product.ID, Quantity: 1}}, "", "")
	if !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)

	order, _ := CreateOrder(ctx, database, customer.UserID,
		[]SaleItemInput{{ProductID: product.ID, Quantity: 1}}, "", "")

	// pending cannot jump straight to delivered.
	if _, err := UpdateOrderStatus(ctx, database, order.ID, model.OrderStatusDelivered, staff); !model.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	for _, status := range []string{
		model.OrderStatusConfirmed, model.OrderStatusShipped, model.OrderStatusDelivered,
	} {
		updated, err := UpdateOrderStatus(ctx, database, order.ID, status, staff)
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		if updated.Status != status {
			t.Errorf("expected %s, got %s", status, updated.Status)
		}
	}

	// delivered is final.
	if _, err := UpdateOrderStatus(ctx, database, order.ID, model.OrderStatusCancelled, staff); !model.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestUpdateOrderStatusRequiresStaff(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	customer := seedCustomer(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)

	order, _ := CreateOrder(ctx, database, customer.UserID,
		[]SaleItemInput{{ProductID: product.ID, Quantity: 1}}, "", "")

	_, err := UpdateOrderStatus(ctx, database, order.ID, model.OrderStatusConfirmed, customer)
	if !model.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestListOrdersByUserAndStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)
	alice := seedUser(t, database, "alice", model.RoleCustomer)
	bob := seedUser(t, database, "bob", model.RoleCustomer)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	items := []SaleItemInput{{ProductID: product.ID, Quantity: 1}}

	first, _ := CreateOrder(ctx, database, alice.UserID, items, "", "")
	CreateOrder(ctx, database, alice.UserID, items, "", "")
	CreateOrder(ctx, database, bob.UserID, items, "", "")
	UpdateOrderStatus(ctx, database, first.ID, model.OrderStatusConfirmed, staff)

	all, err := ListOrders(ctx, database, 0, "")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 orders, got %d", len(all))
	}

	alices, _ := ListOrders(ctx, database, alice.UserID, "")
	if len(alices) != 2 {
		t.Errorf("expected 2 orders for alice, got %d", len(alices))
	}

	confirmed, _ := ListOrders(ctx, database, 0, model.OrderStatusConfirmed)
	if len(confirmed) != 1 || confirmed[0].ID != first.ID {
		t.Errorf("expected only the confirmed order, got %+v", confirmed)
	}
}
