package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dawapos/dawapos/internal/model"
)

// Mpesa implements Gateway against the Daraja STK push API. The OAuth access
// token is cached until shortly before its expiry.
type Mpesa struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Client         *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Method returns "mpesa".
func (m *Mpesa) Method() string { return model.PaymentMethodMpesa }

func (m *Mpesa) httpClient() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

// token returns a cached OAuth access token, fetching a fresh one when the
// cached token is within a minute of expiry.
func (m *Mpesa) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Now().Before(m.tokenExpiry.Add(-time.Minute)) {
		return m.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(m.ConsumerKey + ":" + m.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("access token request returned %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	m.accessToken = body.AccessToken
	m.tokenExpiry = time.Now().Add(time.Hour)
	return m.accessToken, nil
}

// Initiate sends an STK push to the customer's phone and returns the checkout
// request ID as the payment reference.
func (m *Mpesa) Initiate(ctx context.Context, order *model.Order, phone string) (string, error) {
	if phone == "" {
		return "", &model.ValidationError{Field: "phone", Reason: "required for M-Pesa payments"}
	}

	token, err := m.token(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.ShortCode + m.Passkey + timestamp))

	payload := map[string]any{
		"BusinessShortCode": m.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            order.TotalAmount.Round(0).String(),
		"PartyA":            phone,
		"PartyB":            m.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       m.CallbackURL,
		"AccountReference":  fmt.Sprintf("ORDER-%d", order.ID),
		"TransactionDesc":   fmt.Sprintf("Order #%d", order.ID),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding STK push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building STK push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("sending STK push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("STK push returned %s", resp.Status)
	}

	var body struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding STK push response: %w", err)
	}
	if body.ResponseCode != "0" {
		return "", fmt.Errorf("STK push rejected with code %s", body.ResponseCode)
	}
	if body.CheckoutRequestID == "" {
		body.CheckoutRequestID = "MPESA-" + uuid.NewString()
	}
	return body.CheckoutRequestID, nil
}
