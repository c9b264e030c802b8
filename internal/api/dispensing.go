package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dawapos/dawapos/internal/events"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/store"
)

// DispensingHandler handles sale endpoints.
type DispensingHandler struct {
	DB  *sql.DB
	Bus *events.Bus
}

type otcSaleRequest struct {
	PatientName string                `json:"patient_name"`
	Notes       string                `json:"notes"`
	Items       []store.SaleItemInput `json:"items"`
}

type quickSaleRequest struct {
	Notes string                `json:"notes"`
	Items []store.SaleItemInput `json:"items"`
}

// DispenseOTC handles POST /api/dispense. Over-the-counter sales need no
// prescription.
func (h *DispensingHandler) DispenseOTC(w http.ResponseWriter, r *http.Request) {
	var req otcSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := store.Dispense(r.Context(), h.DB, h.Bus, store.DispenseInput{
		SaleType:    model.SaleTypeOTC,
		PatientName: req.PatientName,
		Notes:       req.Notes,
		Items:       req.Items,
	}, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("otc sale dispensed", "user", GetClaims(r.Context()).Username,
		"dispensation", d.ID, "total", d.TotalAmount)
	jsonResponse(w, http.StatusCreated, d)
}

// QuickSale handles POST /api/quick-sale: a walk-in cash sale that commits
// the order, the dispensation, and the cash payment in one shot.
func (h *DispensingHandler) QuickSale(w http.ResponseWriter, r *http.Request) {
	var req quickSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := store.QuickSale(r.Context(), h.DB, h.Bus, req.Items, req.Notes, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("quick sale completed", "user", GetClaims(r.Context()).Username,
		"order", order.ID, "total", order.TotalAmount)
	jsonResponse(w, http.StatusCreated, order)
}

// List handles GET /api/dispensations with an optional sale_type filter.
func (h *DispensingHandler) List(w http.ResponseWriter, r *http.Request) {
	dispensations, err := store.ListDispensations(r.Context(), h.DB, r.URL.Query().Get("sale_type"))
	if err != nil {
		storeError(w, err)
		return
	}
	if dispensations == nil {
		dispensations = []model.Dispensation{}
	}
	jsonResponse(w, http.StatusOK, dispensations)
}

// Get handles GET /api/dispensations/{id}.
func (h *DispensingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid dispensation id")
		return
	}

	d, err := store.GetDispensation(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get dispensation", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get dispensation")
		return
	}
	if d == nil {
		jsonError(w, http.StatusNotFound, "dispensation not found")
		return
	}

	jsonResponse(w, http.StatusOK, d)
}

// Log handles GET /api/dispensing-log: the per-line audit view joining sales
// to their stock ledger entries.
func (h *DispensingHandler) Log(w http.ResponseWriter, r *http.Request) {
	entries, err := store.ListDispensingLog(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list dispensing log", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list dispensing log")
		return
	}
	if entries == nil {
		entries = []model.DispensingLogEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Stats handles GET /api/dispensing-stats.
func (h *DispensingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetDispensingStats(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to get dispensing stats", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get dispensing stats")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}
