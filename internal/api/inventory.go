package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/store"
)

// InventoryHandler handles stock mutation and ledger endpoints.
type InventoryHandler struct {
	DB  *sql.DB
	Bus *events.Bus
}

type restockRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type adjustRequest struct {
	ProductID  int64  `json:"product_id"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
	ChangeType string `json:"change_type"`
}

// Summary handles GET /api/inventory/summary.
func (h *InventoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := store.GetInventorySummary(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to get inventory summary", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get inventory summary")
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

// Restock handles POST /api/inventory/restock.
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := store.RestockProduct(r.Context(), h.DB, h.Bus, req.ProductID, req.Quantity, req.Reason, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("stock added", "user", GetClaims(r.Context()).Username,
		"product", p.Name, "quantity", req.Quantity, "new_stock", p.StockQuantity)
	jsonResponse(w, http.StatusOK, p)
}

// Adjust handles POST /api/inventory/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Reason == "" {
		jsonError(w, http.StatusBadRequest, "reason required")
		return
	}

	p, err := store.AdjustStock(r.Context(), h.DB, h.Bus, req.ProductID, req.Delta,
		req.Reason, req.ChangeType, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("stock adjusted", "user", GetClaims(r.Context()).Username,
		"product", p.Name, "delta", req.Delta, "new_stock", p.StockQuantity)
	jsonResponse(w, http.StatusOK, p)
}

// ProductLogs handles GET /api/products/{id}/logs.
func (h *InventoryHandler) ProductLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	logs, err := store.ListStockLogs(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list stock logs", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list stock logs")
		return
	}
	if logs == nil {
		logs = []model.StockLogEntry{}
	}
	jsonResponse(w, http.StatusOK, logs)
}

// Logs handles GET /api/inventory/logs. Filters: change_type, or a start/end
// date range (YYYY-MM-DD).
func (h *InventoryHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var logs []model.StockLogEntry
	var err error
	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		var start, end time.Time
		if start, err = time.Parse("2006-01-02", q.Get("start")); err != nil {
			jsonError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
		if end, err = time.Parse("2006-01-02", q.Get("end")); err != nil {
			jsonError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
		logs, err = store.ListStockLogsInRange(r.Context(), h.DB, start, end.Add(24*time.Hour))
	case q.Get("change_type") != "":
		logs, err = store.ListStockLogsByType(r.Context(), h.DB, q.Get("change_type"))
	default:
		jsonError(w, http.StatusBadRequest, "change_type or start/end range required")
		return
	}
	if err != nil {
		storeError(w, err)
		return
	}
	if logs == nil {
		logs = []model.StockLogEntry{}
	}
	jsonResponse(w, http.StatusOK, logs)
}
