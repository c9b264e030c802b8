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

// PrescriptionsHandler handles prescription lifecycle endpoints.
type PrescriptionsHandler struct {
	DB  *sql.DB
	Bus *events.Bus
}

type createPrescriptionRequest struct {
	PatientName      string                        `json:"patient_name"`
	PatientAge       *int                          `json:"patient_age"`
	PrescriberName   string                        `json:"prescriber_name"`
	PrescriptionDate string                        `json:"prescription_date"` // YYYY-MM-DD
	Notes            string                        `json:"notes"`
	Items            []store.PrescriptionItemInput `json:"items"`
}

type dispensePrescriptionRequest struct {
	Items []store.SaleItemInput `json:"items"`
	Notes string                `json:"notes"`
}

// Create handles POST /api/prescriptions.
func (h *PrescriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date := time.Now()
	if req.PrescriptionDate != "" {
		var err error
		if date, err = time.Parse("2006-01-02", req.PrescriptionDate); err != nil {
			jsonError(w, http.StatusBadRequest, "prescription_date must be YYYY-MM-DD")
			return
		}
	}

	p, err := store.CreatePrescription(r.Context(), h.DB, req.PatientName, req.PatientAge,
		req.PrescriberName, date, req.Notes, req.Items, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("prescription created", "user", GetClaims(r.Context()).Username,
		"prescription", p.ID, "patient", p.PatientName)
	jsonResponse(w, http.StatusCreated, p)
}

// List handles GET /api/prescriptions with an optional status filter.
func (h *PrescriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := store.ListPrescriptions(r.Context(), h.DB, r.URL.Query().Get("status"))
	if err != nil {
		storeError(w, err)
		return
	}
	if prescriptions == nil {
		prescriptions = []model.Prescription{}
	}
	jsonResponse(w, http.StatusOK, prescriptions)
}

// Get handles GET /api/prescriptions/{id}.
func (h *PrescriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	p, err := store.GetPrescription(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get prescription", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get prescription")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "prescription not found")
		return
	}

	jsonResponse(w, http.StatusOK, p)
}

// Verify handles POST /api/prescriptions/{id}/verify.
func (h *PrescriptionsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	p, err := store.VerifyPrescription(r.Context(), h.DB, id, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("prescription verified", "user", GetClaims(r.Context()).Username, "prescription", id)
	jsonResponse(w, http.StatusOK, p)
}

// Cancel handles POST /api/prescriptions/{id}/cancel.
func (h *PrescriptionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	p, err := store.CancelPrescription(r.Context(), h.DB, id, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("prescription cancelled", "user", GetClaims(r.Context()).Username, "prescription", id)
	jsonResponse(w, http.StatusOK, p)
}

// Dispense handles POST /api/prescriptions/{id}/dispense. The prescription
// must be verified; quantities may be less than prescribed but never more
// than stock allows.
func (h *PrescriptionsHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	var req dispensePrescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := store.GetPrescription(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get prescription", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get prescription")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "prescription not found")
		return
	}

	items := req.Items
	if len(items) == 0 {
		// Default to the prescribed quantities.
		for _, item := range p.Items {
			items = append(items, store.SaleItemInput{
				ProductID: item.ProductID,
				Quantity:  item.PrescribedQuantity,
			})
		}
	}

	d, err := store.Dispense(r.Context(), h.DB, h.Bus, store.DispenseInput{
		SaleType:       model.SaleTypePrescription,
		PrescriptionID: &id,
		PatientName:    p.PatientName,
		Notes:          req.Notes,
		Items:          items,
	}, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("prescription dispensed", "user", GetClaims(r.Context()).Username,
		"prescription", id, "dispensation", d.ID, "total", d.TotalAmount)
	jsonResponse(w, http.StatusCreated, d)
}
