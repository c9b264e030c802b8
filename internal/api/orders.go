package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/store"
)

// OrdersHandler handles customer order endpoints.
type OrdersHandler struct {
	DB *sql.DB
}

type createOrderRequest struct {
	Items           []store.SaleItemInput `json:"items"`
	DeliveryAddress string                `json:"delivery_address"`
	Notes           string                `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/orders. The order belongs to the caller.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := store.CreateOrder(r.Context(), h.DB, claims.UserID, req.Items,
		req.DeliveryAddress, req.Notes)
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("order placed", "user", claims.Username, "order", order.ID, "total", order.TotalAmount)
	jsonResponse(w, http.StatusCreated, order)
}

// List handles GET /api/orders. Staff see every order; customers only their
// own.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	a := actor(r.Context())

	userID := a.UserID
	if a.IsStaff() {
		userID = 0
		if s := r.URL.Query().Get("user_id"); s != "" {
			var err error
			if userID, err = strconv.ParseInt(s, 10, 64); err != nil {
				jsonError(w, http.StatusBadRequest, "invalid user_id")
				return
			}
		}
	}

	orders, err := store.ListOrders(r.Context(), h.DB, userID, r.URL.Query().Get("status"))
	if err != nil {
		storeError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Get handles GET /api/orders/{id}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := store.GetOrder(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get order", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		jsonError(w, http.StatusNotFound, "order not found")
		return
	}

	a := actor(r.Context())
	if order.UserID != a.UserID && !a.IsStaff() {
		jsonError(w, http.StatusForbidden, "not your order")
		return
	}

	jsonResponse(w, http.StatusOK, order)
}

// UpdateStatus handles PUT /api/orders/{id}/status.
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := store.UpdateOrderStatus(r.Context(), h.DB, id, req.Status, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("order status updated", "user", GetClaims(r.Context()).Username,
		"order", id, "status", req.Status)
	jsonResponse(w, http.StatusOK, order)
}
