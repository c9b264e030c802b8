package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/money"
	"github.com/dawapos/dawapos/internal/store"
)

// RestockRequestsHandler handles restock workflow endpoints.
type RestockRequestsHandler struct {
	DB  *sql.DB
	Bus *events.Bus
}

type createRestockRequest struct {
	ProductID     int64  `json:"product_id"`
	Quantity      int    `json:"quantity"`
	Notes         string `json:"notes"`
	Supplier      string `json:"supplier"`
	EstimatedCost string `json:"estimated_cost"`
}

type restockActionRequest struct {
	Notes string `json:"notes"`
}

// Create handles POST /api/restock-requests.
func (h *RestockRequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRestockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var cost *decimal.Decimal
	if req.EstimatedCost != "" {
		parsed, err := money.Parse(req.EstimatedCost)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "estimated_cost must be a decimal amount")
			return
		}
		cost = &parsed
	}

	request, err := store.CreateRestockRequest(r.Context(), h.DB, req.ProductID,
		req.Quantity, req.Notes, req.Supplier, cost, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("restock request created", "user", GetClaims(r.Context()).Username,
		"request", request.ID, "product", request.ProductID, "quantity", request.RequestedQuantity)
	jsonResponse(w, http.StatusCreated, request)
}

// List handles GET /api/restock-requests. Filters: status, product_id.
// Customers only see their own requests.
func (h *RestockRequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var productID int64
	if s := q.Get("product_id"); s != "" {
		var err error
		if productID, err = strconv.ParseInt(s, 10, 64); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid product_id")
			return
		}
	}

	requests, err := store.ListRestockRequests(r.Context(), h.DB, q.Get("status"), productID, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}
	if requests == nil {
		requests = []model.RestockRequest{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// Get handles GET /api/restock-requests/{id}.
func (h *RestockRequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	request, err := store.GetRestockRequest(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get restock request", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get restock request")
		return
	}
	if request == nil {
		jsonError(w, http.StatusNotFound, "restock request not found")
		return
	}

	jsonResponse(w, http.StatusOK, request)
}

// Action handles POST /api/restock-requests/{id}/{action} for approve,
// reject, complete, and cancel.
func (h *RestockRequestsHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	action := r.PathValue("action")

	var req restockActionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	request, err := store.TransitionRestockRequest(r.Context(), h.DB, h.Bus, id, action, req.Notes, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("restock request transitioned", "user", GetClaims(r.Context()).Username,
		"request", id, "action", action, "status", request.Status)
	jsonResponse(w, http.StatusOK, request)
}
