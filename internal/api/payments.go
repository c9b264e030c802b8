package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/payments"
	"github.com/dawapos/dawapos/internal/store"
)

// PaymentsHandler handles payment initiation and gateway callbacks.
type PaymentsHandler struct {
	Service *payments.Service
}

type initiatePaymentRequest struct {
	OrderID int64  `json:"order_id"`
	Method  string `json:"method"`
	Phone   string `json:"phone"` // M-Pesa only
}

// mpesaCallback is the subset of the Daraja callback payload we act on.
type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type stripeWebhook struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// Initiate handles POST /api/payments/initiate.
func (h *PaymentsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.Service.Initiate(r.Context(), req.Method, req.OrderID, req.Phone, actor(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, payment)
}

// MpesaCallback handles POST /api/payments/mpesa/callback. The gateway posts
// here; the endpoint is unauthenticated by necessity.
func (h *PaymentsHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	var cb mpesaCallback
	if err := decodeJSON(r, &cb); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	stk := cb.Body.StkCallback
	status := model.PaymentStatusCompleted
	if stk.ResultCode != 0 {
		status = model.PaymentStatusFailed
	}

	var receipt string
	for _, item := range stk.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				receipt = s
			}
		}
	}

	if _, err := h.Service.Settle(r.Context(), stk.CheckoutRequestID, status, receipt, stk.ResultDesc); err != nil {
		slog.Error("mpesa callback failed", "reference", stk.CheckoutRequestID, "error", err)
		jsonError(w, http.StatusBadRequest, "failed to process callback")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StripeWebhook handles POST /api/payments/stripe/webhook.
func (h *PaymentsHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	var event stripeWebhook
	if err := decodeJSON(r, &event); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	var status string
	switch event.Type {
	case "payment_intent.succeeded":
		status = model.PaymentStatusCompleted
	case "payment_intent.payment_failed":
		status = model.PaymentStatusFailed
	case "payment_intent.canceled":
		status = model.PaymentStatusCancelled
	default:
		// Not a payment event we track.
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if _, err := h.Service.Settle(r.Context(), event.Data.Object.ID, status, event.Data.Object.ID, event.Type); err != nil {
		slog.Error("stripe webhook failed", "reference", event.Data.Object.ID, "error", err)
		jsonError(w, http.StatusBadRequest, "failed to process webhook")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type settlePaymentRequest struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Notes         string `json:"notes"`
}

// Settle handles POST /api/payments/{id}/settle. Staff mark a
// cash-on-delivery payment collected (or a stuck gateway payment resolved)
// without waiting for a callback.
func (h *PaymentsHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	var req settlePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := store.GetPayment(r.Context(), h.Service.DB, id)
	if err != nil {
		slog.Error("failed to get payment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if payment == nil {
		jsonError(w, http.StatusNotFound, "payment not found")
		return
	}

	payment, err = h.Service.Settle(r.Context(), payment.Reference, req.Status, req.TransactionID, req.Notes)
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, payment)
}

// Get handles GET /api/payments/{id}.
func (h *PaymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	payment, err := store.GetPayment(r.Context(), h.Service.DB, id)
	if err != nil {
		slog.Error("failed to get payment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if payment == nil {
		jsonError(w, http.StatusNotFound, "payment not found")
		return
	}

	a := actor(r.Context())
	if !a.IsStaff() {
		order, err := store.GetOrder(r.Context(), h.Service.DB, payment.OrderID)
		if err != nil || order == nil || order.UserID != a.UserID {
			jsonError(w, http.StatusForbidden, "not your payment")
			return
		}
	}

	jsonResponse(w, http.StatusOK, payment)
}

// ListMine handles GET /api/payments: the caller's payment history.
func (h *PaymentsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	a := actor(r.Context())
	paymentsList, err := store.ListPaymentsForUser(r.Context(), h.Service.DB, a.UserID)
	if err != nil {
		slog.Error("failed to list payments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	if paymentsList == nil {
		paymentsList = []model.Payment{}
	}
	jsonResponse(w, http.StatusOK, paymentsList)
}
