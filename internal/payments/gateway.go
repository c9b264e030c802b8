// Package payments talks to external payment gateways. Gateway calls happen
// outside any inventory transaction: a payment row is written in initiated
// status first, and the gateway's callback settles it later.
package payments

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/store"
)

// Gateway starts a charge with an external provider and returns the reference
// the provider will echo back in its callback.
type Gateway interface {
	// Method returns the payment method this gateway settles.
	Method() string
	// Initiate starts a charge for the order and returns the gateway reference.
	Initiate(ctx context.Context, order *model.Order, account string) (string, error)
}

// Service coordinates payment rows with gateway calls.
type Service struct {
	DB       *sql.DB
	Gateways map[string]Gateway
}

// NewService creates a payment service with the given gateways registered by
// method name.
func NewService(db *sql.DB, gateways ...Gateway) *Service {
	s := &Service{DB: db, Gateways: make(map[string]Gateway)}
	for _, gw := range gateways {
		s.Gateways[gw.Method()] = gw
	}
	return s
}

// Initiate starts a gateway payment for a pending order. The actor must own
// the order or be staff.
func (s *Service) Initiate(ctx context.Context, method string, orderID int64,
	account string, actor *model.Actor) (*model.Payment, error) {

	gw, ok := s.Gateways[method]
	if !ok && method != model.PaymentMethodCOD {
		return nil, &model.ValidationError{Field: "method",
			Reason: fmt.Sprintf("no gateway configured for %q", method)}
	}

	order, err := store.GetOrder(ctx, s.DB, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &model.NotFoundError{Entity: "order", ID: orderID}
	}
	if actor == nil || (order.UserID != actor.UserID && !actor.IsStaff()) {
		return nil, &model.ForbiddenError{Action: "pay for this order"}
	}
	if order.Status != model.OrderStatusPending {
		return nil, &model.InvalidTransitionError{Entity: "order", Status: order.Status, Action: "pay"}
	}
	if order.PaymentID != nil {
		existing, err := store.GetPayment(ctx, s.DB, *order.PaymentID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status != model.PaymentStatusFailed &&
			existing.Status != model.PaymentStatusCancelled {
			return nil, &model.InvalidTransitionError{Entity: "payment", Status: existing.Status, Action: "initiate"}
		}
	}

	var reference string
	if method == model.PaymentMethodCOD {
		// No provider involved; staff settle the payment once the order is
		// delivered and the cash collected.
		reference = fmt.Sprintf("COD-%d", orderID)
	} else {
		reference, err = gw.Initiate(ctx, order, account)
		if err != nil {
			return nil, fmt.Errorf("initiating %s payment: %w", method, err)
		}
	}

	payment, err := store.CreatePayment(ctx, s.DB, orderID, method, order.TotalAmount, reference)
	if err != nil {
		return nil, err
	}

	slog.Info("payment initiated", "payment", payment.ID, "order", orderID,
		"method", method, "amount", payment.Amount)
	return payment, nil
}

// Settle records a gateway callback result. A completed payment confirms the
// pending order.
func (s *Service) Settle(ctx context.Context, reference, status, transactionID, notes string) (*model.Payment, error) {
	payment, err := store.GetPaymentByReference(ctx, s.DB, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("no payment with reference %q", reference)
	}

	payment, err = store.SettlePayment(ctx, s.DB, payment.ID, status, transactionID, notes)
	if err != nil {
		return nil, err
	}

	if payment.Status == model.PaymentStatusCompleted {
		order, err := store.GetOrder(ctx, s.DB, payment.OrderID)
		if err != nil {
			return nil, err
		}
		// Cash-on-delivery payments settle after the order has already moved
		// past pending; only a pending order needs confirming here.
		if order != nil && order.Status == model.OrderStatusPending {
			_, err = store.UpdateOrderStatus(ctx, s.DB, payment.OrderID, model.OrderStatusConfirmed,
				&model.Actor{Role: model.RoleAdmin, Username: "payments"})
			if err != nil {
				return nil, fmt.Errorf("confirming paid order: %w", err)
			}
		}
	}

	slog.Info("payment settled", "payment", payment.ID, "status", payment.Status,
		"transaction", payment.TransactionID)
	return payment, nil
}
