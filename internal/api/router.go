package api

import (
	"database/sql"
	"net/http"

	"github.com/dawapos/dawapos/internal/auth"
	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/payments"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, bus *events.Bus, paySvc *payments.Service, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	tokenCache := auth.NewTokenCache()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret, TokenCache: tokenCache}
	usersHandler := &UsersHandler{DB: db}
	productsHandler := &ProductsHandler{DB: db}
	inventoryHandler := &InventoryHandler{DB: db, Bus: bus}
	restockHandler := &RestockRequestsHandler{DB: db, Bus: bus}
	prescriptionsHandler := &PrescriptionsHandler{DB: db, Bus: bus}
	dispensingHandler := &DispensingHandler{DB: db, Bus: bus}
	ordersHandler := &OrdersHandler{DB: db}
	paymentsHandler := &PaymentsHandler{Service: paySvc}

	authMW := AuthMiddleware(jwtSecret, tokenCache)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireStaff := RequireRole(model.RolePharmacist)

	// Public: register, login, gateway callbacks.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/payments/mpesa/callback", paymentsHandler.MpesaCallback)
	mux.HandleFunc("POST /api/payments/stripe/webhook", paymentsHandler.StripeWebhook)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Catalog: read (all roles), write (staff).
	mux.Handle("GET /api/products", authMW(http.HandlerFunc(productsHandler.List)))
	mux.Handle("POST /api/products", authMW(requireStaff(http.HandlerFunc(productsHandler.Create))))
	mux.Handle("GET /api/products/{id}", authMW(http.HandlerFunc(productsHandler.Get)))
	mux.Handle("PUT /api/products/{id}", authMW(requireStaff(http.HandlerFunc(productsHandler.Update))))
	mux.Handle("DELETE /api/products/{id}", authMW(requireStaff(http.HandlerFunc(productsHandler.Delete))))
	mux.Handle("PUT /api/products/{id}/image", authMW(requireStaff(http.HandlerFunc(productsHandler.UploadImage))))
	mux.Handle("GET /api/products/{id}/image", authMW(http.HandlerFunc(productsHandler.GetImage)))
	mux.Handle("GET /api/products/{id}/logs", authMW(requireStaff(http.HandlerFunc(inventoryHandler.ProductLogs))))

	// Inventory (staff).
	mux.Handle("GET /api/inventory/summary", authMW(requireStaff(http.HandlerFunc(inventoryHandler.Summary))))
	mux.Handle("POST /api/inventory/restock", authMW(requireStaff(http.HandlerFunc(inventoryHandler.Restock))))
	mux.Handle("POST /api/inventory/adjust", authMW(requireStaff(http.HandlerFunc(inventoryHandler.Adjust))))
	mux.Handle("GET /api/inventory/logs", authMW(requireStaff(http.HandlerFunc(inventoryHandler.Logs))))

	// Restock workflow: any authenticated user may file and view; transitions
	// are guarded per-action in the store.
	mux.Handle("POST /api/restock-requests", authMW(http.HandlerFunc(restockHandler.Create)))
	mux.Handle("GET /api/restock-requests", authMW(http.HandlerFunc(restockHandler.List)))
	mux.Handle("GET /api/restock-requests/{id}", authMW(http.HandlerFunc(restockHandler.Get)))
	mux.Handle("POST /api/restock-requests/{id}/{action}", authMW(http.HandlerFunc(restockHandler.Action)))

	// Prescriptions (staff).
	mux.Handle("POST /api/prescriptions", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.Create))))
	mux.Handle("GET /api/prescriptions", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.List))))
	mux.Handle("GET /api/prescriptions/{id}", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.Get))))
	mux.Handle("POST /api/prescriptions/{id}/verify", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.Verify))))
	mux.Handle("POST /api/prescriptions/{id}/cancel", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.Cancel))))
	mux.Handle("POST /api/prescriptions/{id}/dispense", authMW(requireStaff(http.HandlerFunc(prescriptionsHandler.Dispense))))

	// Dispensing (staff).
	mux.Handle("POST /api/dispense", authMW(requireStaff(http.HandlerFunc(dispensingHandler.DispenseOTC))))
	mux.Handle("POST /api/quick-sale", authMW(requireStaff(http.HandlerFunc(dispensingHandler.QuickSale))))
	mux.Handle("GET /api/dispensations", authMW(requireStaff(http.HandlerFunc(dispensingHandler.List))))
	mux.Handle("GET /api/dispensations/{id}", authMW(requireStaff(http.HandlerFunc(dispensingHandler.Get))))
	mux.Handle("GET /api/dispensing-log", authMW(requireStaff(http.HandlerFunc(dispensingHandler.Log))))
	mux.Handle("GET /api/dispensing-stats", authMW(requireStaff(http.HandlerFunc(dispensingHandler.Stats))))

	// Orders.
	mux.Handle("POST /api/orders", authMW(http.HandlerFunc(ordersHandler.Create)))
	mux.Handle("GET /api/orders", authMW(http.HandlerFunc(ordersHandler.List)))
	mux.Handle("GET /api/orders/{id}", authMW(http.HandlerFunc(ordersHandler.Get)))
	mux.Handle("PUT /api/orders/{id}/status", authMW(requireStaff(http.HandlerFunc(ordersHandler.UpdateStatus))))

	// Payments.
	mux.Handle("POST /api/payments/initiate", authMW(http.HandlerFunc(paymentsHandler.Initiate)))
	mux.Handle("GET /api/payments", authMW(http.HandlerFunc(paymentsHandler.ListMine)))
	mux.Handle("GET /api/payments/{id}", authMW(http.HandlerFunc(paymentsHandler.Get)))
	mux.Handle("POST /api/payments/{id}/settle", authMW(requireStaff(http.HandlerFunc(paymentsHandler.Settle))))

	return mux
}
