package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dawapos/dawapos/internal/auth"
	"github.com/dawapos/dawapos/internal/db"
	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/payments"
	"github.com/dawapos/dawapos/internal/store"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, events.NewBus(), payments.NewService(database), testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, database
}

func loginAs(t *testing.T, server *httptest.Server, database *sql.DB, username, role string) string {
	t.Helper()
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if _, err := store.CreateUser(ctx, database, username, "", string(hash), role); err != nil {
		t.Fatalf("creating %s: %v", username, err)
	}

	body, _ := json.Marshal(map[string]string{"username": username, "password": "password123"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var login loginResponse
	json.NewDecoder(resp.Body).Decode(&login)
	if login.Token == "" {
		t.Fatal("empty token from login")
	}
	return login.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doJSON(t *testing.T, req *http.Request, wantStatus int, out any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d", req.Method, req.URL.Path, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func TestLoginEndpoint(t *testing.T) {
	server, database := newTestServer(t)
	loginAs(t, server, database, "amina", model.RolePharmacist)

	// Wrong password.
	body, _ := json.Marshal(map[string]string{"username": "amina", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterAlwaysCreatesCustomer(t *testing.T) {
	server, database := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"username": "wanjiru",
		"password": "password123",
	})
	resp, _ := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	user, _ := store.GetUserByUsername(context.Background(), database, "wanjiru")
	if user == nil || user.Role != model.RoleCustomer {
		t.Errorf("expected customer role from self-signup, got %+v", user)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := http.Get(server.URL + "/api/products")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, database := newTestServer(t)
	customerToken := loginAs(t, server, database, "wanjiru", model.RoleCustomer)
	staffToken := loginAs(t, server, database, "amina", model.RolePharmacist)

	// Customers cannot create products.
	req, _ := authRequest("POST", server.URL+"/api/products", customerToken, map[string]any{
		"name": "Paracetamol", "category": model.CategoryPainRelief, "price": "2.50",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for customer creating product, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Pharmacists cannot manage users.
	req, _ = authRequest("GET", server.URL+"/api/users", staffToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for pharmacist listing users, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Customers can read the catalog.
	req, _ = authRequest("GET", server.URL+"/api/products", customerToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for customer reading catalog, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInventoryAPIFlow(t *testing.T) {
	server, database := newTestServer(t)
	token := loginAs(t, server, database, "amina", model.RolePharmacist)

	// Create a product.
	var product struct {
		ID int64 `json:"id"`
	}
	req, _ := authRequest("POST", server.URL+"/api/products", token, map[string]any{
		"name":              "Paracetamol 500mg",
		"category":          model.CategoryPainRelief,
		"price":             "2.50",
		"reorder_threshold": 10,
	})
	doJSON(t, req, http.StatusCreated, &product)

	// Restock it.
	req, _ = authRequest("POST", server.URL+"/api/inventory/restock", token, map[string]any{
		"product_id": product.ID, "quantity": 40, "reason": "opening stock",
	})
	doJSON(t, req, http.StatusOK, nil)

	// Adjust down.
	req, _ = authRequest("POST", server.URL+"/api/inventory/adjust", token, map[string]any{
		"product_id": product.ID, "delta": -5, "reason": "damaged in storage", "change_type": model.ChangeTypeAdjustment,
	})
	var adjusted model.Product
	doJSON(t, req, http.StatusOK, &adjusted)
	if adjusted.StockQuantity != 35 {
		t.Errorf("expected stock 35, got %d", adjusted.StockQuantity)
	}

	// Negative result is rejected as a conflict.
	req, _ = authRequest("POST", server.URL+"/api/inventory/adjust", token, map[string]any{
		"product_id": product.ID, "delta": -100, "reason": "oops", "change_type": model.ChangeTypeAdjustment,
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for negative stock, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The ledger saw both changes.
	var logs []model.StockLogEntry
	req, _ = authRequest("GET", fmt.Sprintf("%s/api/products/%d/logs", server.URL, product.ID), token, nil)
	doJSON(t, req, http.StatusOK, &logs)
	if len(logs) != 2 {
		t.Errorf("expected 2 ledger entries, got %d", len(logs))
	}
}

func TestDispenseAPIFlow(t *testing.T) {
	server, database := newTestServer(t)
	token := loginAs(t, server, database, "amina", model.RolePharmacist)

	var product struct {
		ID int64 `json:"id"`
	}
	req, _ := authRequest("POST", server.URL+"/api/products", token, map[string]any{
		"name": "Ibuprofen", "category": model.CategoryPainRelief, "price": "4.00",
	})
	doJSON(t, req, http.StatusCreated, &product)

	req, _ = authRequest("POST", server.URL+"/api/inventory/restock", token, map[string]any{
		"product_id": product.ID, "quantity": 10, "reason": "opening stock",
	})
	doJSON(t, req, http.StatusOK, nil)

	// OTC sale.
	var d model.Dispensation
	req, _ = authRequest("POST", server.URL+"/api/dispense", token, map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 2}},
	})
	doJSON(t, req, http.StatusCreated, &d)
	if d.TotalAmount.StringFixed(2) != "8.00" {
		t.Errorf("expected total 8.00, got %s", d.TotalAmount)
	}

	// Overselling returns a conflict and changes nothing.
	req, _ = authRequest("POST", server.URL+"/api/dispense", token, map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 50}},
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for oversell, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	p, _ := store.GetProduct(context.Background(), database, product.ID)
	if p.StockQuantity != 8 {
		t.Errorf("expected stock 8, got %d", p.StockQuantity)
	}
}

func TestRestockRequestAPIFlow(t *testing.T) {
	server, database := newTestServer(t)
	staffToken := loginAs(t, server, database, "amina", model.RolePharmacist)
	customerToken := loginAs(t, server, database, "wanjiru", model.RoleCustomer)

	var product struct {
		ID int64 `json:"id"`
	}
	req, _ := authRequest("POST", server.URL+"/api/products", staffToken, map[string]any{
		"name": "Cetirizine", "category": model.CategoryOther, "price": "1.20",
	})
	doJSON(t, req, http.StatusCreated, &product)

	// Customer files a request.
	var created model.RestockRequest
	req, _ = authRequest("POST", server.URL+"/api/restock-requests", customerToken, map[string]any{
		"product_id": product.ID, "quantity": 30,
	})
	doJSON(t, req, http.StatusCreated, &created)

	// Customer cannot approve it.
	req, _ = authRequest("POST", fmt.Sprintf("%s/api/restock-requests/%d/approve", server.URL, created.ID), customerToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for customer approving, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Staff approves and completes.
	var request model.RestockRequest
	req, _ = authRequest("POST", fmt.Sprintf("%s/api/restock-requests/%d/approve", server.URL, created.ID), staffToken, nil)
	doJSON(t, req, http.StatusOK, &request)
	req, _ = authRequest("POST", fmt.Sprintf("%s/api/restock-requests/%d/complete", server.URL, created.ID), staffToken, nil)
	doJSON(t, req, http.StatusOK, &request)
	if request.Status != model.RestockStatusCompleted {
		t.Errorf("expected completed, got %s", request.Status)
	}

	p, _ := store.GetProduct(context.Background(), database, product.ID)
	if p.StockQuantity != 30 {
		t.Errorf("expected stock 30 after completion, got %d", p.StockQuantity)
	}
}

func TestLogoutInvalidatesCachedToken(t *testing.T) {
	server, database := newTestServer(t)
	token := loginAs(t, server, database, "amina", model.RolePharmacist)

	req, _ := authRequest("POST", server.URL+"/api/auth/logout", token, nil)
	doJSON(t, req, http.StatusOK, nil)

	// The JWT itself is still valid, so requests keep working; logout only
	// drops the cache entry.
	req, _ = authRequest("GET", server.URL+"/api/products", token, nil)
	doJSON(t, req, http.StatusOK, nil)
}

func TestGeneratedTokenWorksWithoutLogin(t *testing.T) {
	server, database := newTestServer(t)
	ctx := context.Background()
	user, err := store.CreateUser(ctx, database, "amina", "", "not-a-real-hash", model.RolePharmacist)
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	token, err := auth.GenerateToken(testJWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req, _ := authRequest("GET", server.URL+"/api/inventory/summary", token, nil)
	doJSON(t, req, http.StatusOK, nil)
}
