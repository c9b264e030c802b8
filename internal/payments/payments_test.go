package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/db"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/store"
)

func setupOrder(t *testing.T, database *sql.DB) (*model.Order, *model.Actor) {
	t.Helper()
	ctx := context.Background()
	customer, err := store.CreateUser(ctx, database, "wanjiru", "", "not-a-real-hash", model.RoleCustomer)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	product, err := store.CreateProduct(ctx, database, &model.Product{
		Name:     "Paracetamol",
		Category: model.CategoryPainRelief,
		Price:    decimal.RequireFromString("2.50"),
	})
	if err != nil {
		t.Fatalf("seeding product: %v", err)
	}
	order, err := store.CreateOrder(ctx, database, customer.ID,
		[]store.SaleItemInput{{ProductID: product.ID, Quantity: 4}}, "", "")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	return order, &model.Actor{UserID: customer.ID, Username: customer.Username, Role: customer.Role}
}

func fakeMpesa(t *testing.T) (*Mpesa, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token", "expires_in": "3599"})
	})
	mux.HandleFunc("POST /mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"CheckoutRequestID": "ws_CO_9999",
			"ResponseCode":      "0",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &Mpesa{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/callback",
		Client:         srv.Client(),
	}, srv
}

func TestMpesaInitiate(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)

	payment, err := svc.Initiate(context.Background(), model.PaymentMethodMpesa,
		order.ID, "254700000000", actor)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if payment.Status != model.PaymentStatusInitiated {
		t.Errorf("expected initiated, got %s", payment.Status)
	}
	if payment.Reference != "ws_CO_9999" {
		t.Errorf("expected gateway reference, got %q", payment.Reference)
	}
	if !payment.Amount.Equal(order.TotalAmount) {
		t.Errorf("expected amount %s, got %s", order.TotalAmount, payment.Amount)
	}
}

func TestMpesaInitiateRequiresPhone(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)

	_, err := svc.Initiate(context.Background(), model.PaymentMethodMpesa, order.ID, "", actor)
	if err == nil {
		t.Error("expected error for missing phone")
	}
}

func TestMpesaTokenIsCached(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token", "expires_in": "3599"})
	})
	mux.HandleFunc("POST /mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"CheckoutRequestID": "ws_CO_1", "ResponseCode": "0"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := &Mpesa{BaseURL: srv.URL, ShortCode: "174379", Passkey: "pk", Client: srv.Client()}
	order := &model.Order{ID: 1, TotalAmount: decimal.NewFromInt(10)}

	for i := 0; i < 3; i++ {
		if _, err := gw.Initiate(context.Background(), order, "254700000000"); err != nil {
			t.Fatalf("Initiate: %v", err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("expected 1 token fetch, got %d", tokenCalls)
	}
}

func TestStripeInitiate(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// 10.00 in cents.
		if got := r.PostForm.Get("amount"); got != "1000" {
			t.Errorf("expected amount 1000, got %q", got)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("expected an idempotency key")
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "pi_test_1"})
	}))
	defer srv.Close()

	svc := NewService(database, &Stripe{BaseURL: srv.URL, SecretKey: "sk_test", Client: srv.Client()})
	payment, err := svc.Initiate(context.Background(), model.PaymentMethodStripe, order.ID, "", actor)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if payment.Reference != "pi_test_1" {
		t.Errorf("expected reference pi_test_1, got %q", payment.Reference)
	}
}

func TestInitiateGuards(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)
	ctx := context.Background()

	// Unknown method.
	if _, err := svc.Initiate(ctx, "barter", order.ID, "x", actor); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	// Someone else's order.
	stranger := &model.Actor{UserID: 9999, Role: model.RoleCustomer}
	if _, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", stranger); !model.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}

	// Double initiation while a payment is pending.
	if _, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	if _, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor); !model.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestSettleConfirmsOrder(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)
	ctx := context.Background()

	payment, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	settled, err := svc.Settle(ctx, payment.Reference, model.PaymentStatusCompleted, "ABC123", "")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.Status != model.PaymentStatusCompleted || settled.TransactionID != "ABC123" {
		t.Errorf("unexpected payment: %+v", settled)
	}

	confirmed, _ := store.GetOrder(ctx, database, order.ID)
	if confirmed.Status != model.OrderStatusConfirmed {
		t.Errorf("expected confirmed order, got %s", confirmed.Status)
	}
}

func TestSettleFailedLeavesOrderPending(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)
	ctx := context.Background()

	payment, _ := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor)
	if _, err := svc.Settle(ctx, payment.Reference, model.PaymentStatusFailed, "", "insufficient funds"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	pending, _ := store.GetOrder(ctx, database, order.ID)
	if pending.Status != model.OrderStatusPending {
		t.Errorf("expected order still pending, got %s", pending.Status)
	}
}

func TestCashOnDeliveryInitiate(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	svc := NewService(database)
	ctx := context.Background()

	payment, err := svc.Initiate(ctx, model.PaymentMethodCOD, order.ID, "", actor)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if payment.Status != model.PaymentStatusInitiated {
		t.Errorf("expected initiated payment, got %s", payment.Status)
	}
	if payment.Reference != fmt.Sprintf("COD-%d", order.ID) {
		t.Errorf("unexpected reference %q", payment.Reference)
	}

	settled, err := svc.Settle(ctx, payment.Reference, model.PaymentStatusCompleted, "", "cash collected")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.Status != model.PaymentStatusCompleted {
		t.Errorf("expected completed payment, got %s", settled.Status)
	}
}

func TestRetryAfterFailedPayment(t *testing.T) {
	database := db.NewTestDB(t)
	order, actor := setupOrder(t, database)
	gw, _ := fakeMpesa(t)
	svc := NewService(database, gw)
	ctx := context.Background()

	first, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor)
	if err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	if _, err := svc.Settle(ctx, first.Reference, model.PaymentStatusFailed, "", "insufficient funds"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	second, err := svc.Initiate(ctx, model.PaymentMethodMpesa, order.ID, "254700000000", actor)
	if err != nil {
		t.Fatalf("retry Initiate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the payment row to be reused, got %d and %d", first.ID, second.ID)
	}
	if second.Status != model.PaymentStatusInitiated {
		t.Errorf("expected initiated payment, got %s", second.Status)
	}
	if second.TransactionID != "" || second.Notes != "" {
		t.Errorf("expected failed attempt details cleared, got %+v", second)
	}
}
