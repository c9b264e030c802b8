package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/db"
	"github.com/dawapos/dawapos/internal/model"
)

func TestCreateProductDefaults(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	p, err := CreateProduct(ctx, database, &model.Product{
		Name:     "Paracetamol 500mg",
		Category: model.CategoryPainRelief,
		Price:    decimal.RequireFromString("2.50"),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if !p.IsActive {
		t.Error("expected new product to be active")
	}
	if p.StockQuantity != 0 {
		t.Errorf("expected zero stock, got %d", p.StockQuantity)
	}
	if p.ReorderThreshold != 10 {
		t.Errorf("expected default threshold 10, got %d", p.ReorderThreshold)
	}
	if !p.Price.Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("expected price 2.50, got %s", p.Price)
	}
}

func TestCreateProductValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		product model.Product
	}{
		{"missing name", model.Product{Category: model.CategoryOther, Price: decimal.NewFromInt(1)}},
		{"bad category", model.Product{Name: "X", Category: "toys", Price: decimal.NewFromInt(1)}},
		{"negative price", model.Product{Name: "X", Category: model.CategoryOther, Price: decimal.NewFromInt(-1)}},
		{"negative threshold", model.Product{Name: "X", Category: model.CategoryOther, Price: decimal.NewFromInt(1), ReorderThreshold: -5}},
	}
	for _, tc := range cases {
		if _, err := CreateProduct(ctx, database, &tc.product); !model.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestUpdateProductKeepsStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)
	seedStock(t, database, staff, product.ID, 25)

	product.Name = "Paracetamol 500mg"
	product.Price = decimal.RequireFromString("3.00")
	product.StockQuantity = 999 // must be ignored
	if err := UpdateProduct(ctx, database, product); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	updated, _ := GetProduct(ctx, database, product.ID)
	if updated.Name != "Paracetamol 500mg" || !updated.Price.Equal(decimal.RequireFromString("3.00")) {
		t.Errorf("unexpected product after update: %+v", updated)
	}
	if updated.StockQuantity != 25 {
		t.Errorf("expected stock untouched at 25, got %d", updated.StockQuantity)
	}
	if !updated.IsActive {
		t.Error("expected product to stay active after update")
	}
}

func TestDeactivateProductHidesFromCatalog(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	keep := seedProduct(t, database, "Paracetamol", "2.50", 10)
	gone := seedProduct(t, database, "Discontinued", "1.00", 10)

	if err := DeactivateProduct(ctx, database, gone.ID); err != nil {
		t.Fatalf("DeactivateProduct: %v", err)
	}

	products, err := ListProducts(ctx, database, ProductFilter{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 1 || products[0].ID != keep.ID {
		t.Errorf("expected only the active product, got %+v", products)
	}

	// Still readable directly, just inactive.
	p, _ := GetProduct(ctx, database, gone.ID)
	if p == nil || p.IsActive {
		t.Errorf("expected inactive product, got %+v", p)
	}
}

func TestListProductsStockFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)

	healthy := seedProduct(t, database, "Healthy", "1.00", 10)
	low := seedProduct(t, database, "Low", "1.00", 10)
	empty := seedProduct(t, database, "Empty", "1.00", 10)
	seedStock(t, database, staff, healthy.ID, 50)
	seedStock(t, database, staff, low.ID, 5)

	lowStock, _ := ListProducts(ctx, database, ProductFilter{LowStock: true})
	if len(lowStock) != 1 || lowStock[0].ID != low.ID {
		t.Errorf("expected only the low product, got %+v", lowStock)
	}

	outOfStock, _ := ListProducts(ctx, database, ProductFilter{OutOfStock: true})
	if len(outOfStock) != 1 || outOfStock[0].ID != empty.ID {
		t.Errorf("expected only the empty product, got %+v", outOfStock)
	}

	byCategory, _ := ListProducts(ctx, database, ProductFilter{Category: model.CategoryPainRelief})
	if len(byCategory) != 3 {
		t.Errorf("expected 3 pain relief products, got %d", len(byCategory))
	}
}

func TestGetInventorySummary(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	staff := seedPharmacist(t, database)

	healthy := seedProduct(t, database, "Healthy", "1.00", 10)
	low := seedProduct(t, database, "Low", "1.00", 10)
	seedProduct(t, database, "Empty", "1.00", 10)
	inactive := seedProduct(t, database, "Inactive", "1.00", 10)
	seedStock(t, database, staff, healthy.ID, 50)
	seedStock(t, database, staff, low.ID, 5)
	DeactivateProduct(ctx, database, inactive.ID)

	summary, err := GetInventorySummary(ctx, database)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	if summary.TotalProducts != 3 {
		t.Errorf("expected 3 active products, got %d", summary.TotalProducts)
	}
	if summary.LowStockItems != 1 {
		t.Errorf("expected 1 low stock item, got %d", summary.LowStockItems)
	}
	if summary.OutOfStockItems != 1 {
		t.Errorf("expected 1 out of stock item, got %d", summary.OutOfStockItems)
	}
}

func TestProductImageRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	product := seedProduct(t, database, "Paracetamol", "2.50", 10)

	data := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	if err := SetProductImage(ctx, database, product.ID, data, "image/jpeg"); err != nil {
		t.Fatalf("SetProductImage: %v", err)
	}

	image, mime, err := GetProductImage(ctx, database, product.ID)
	if err != nil {
		t.Fatalf("GetProductImage: %v", err)
	}
	if mime != "image/jpeg" || len(image) != len(data) {
		t.Errorf("unexpected image: mime=%q len=%d", mime, len(image))
	}
}
