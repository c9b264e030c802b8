package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dawapos/dawapos/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Stripe implements Gateway by creating a PaymentIntent. Amounts are sent in
// cents, and the intent ID becomes the payment reference.
type Stripe struct {
	BaseURL   string
	SecretKey string
	Currency  string
	Client    *http.Client
}

// Method returns "stripe".
func (s *Stripe) Method() string { return model.PaymentMethodStripe }

func (s *Stripe) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// Initiate creates a PaymentIntent for the order total.
func (s *Stripe) Initiate(ctx context.Context, order *model.Order, _ string) (string, error) {
	currency := s.Currency
	if currency == "" {
		currency = "usd"
	}
	cents := order.TotalAmount.Mul(hundred).IntPart()

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", cents))
	form.Set("currency", currency)
	form.Set("metadata[order_id]", fmt.Sprintf("%d", order.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building payment intent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("creating payment intent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment intent request returned %s", resp.Status)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding payment intent response: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("payment intent response missing id")
	}
	return body.ID, nil
}
