package clients

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaystackClientWrapper provides an interface for Paystack operations.
// This interface allows for easier testing by mocking Paystack interactions.
type PaystackClientWrapper interface {
	VerifyWebhookSignature(signature string, rawBody []byte) bool
	VerifyTransaction(ctx context.Context, reference string) (*PaystackTransaction, error)
	CreateRefund(ctx context.Context, transactionID string, amountMinor int64) (*PaystackRefund, error)
}

// PaystackTransaction is the subset of Paystack's transaction verification
// response this service consumes. Amount and Fees are in the currency's
// smallest unit.
type PaystackTransaction struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Fees      int64  `json:"fees"`
	Currency  string `json:"currency"`
}

// PaystackRefund represents a created refund.
type PaystackRefund struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaystackClient implements PaystackClientWrapper against the Paystack REST API.
type PaystackClient struct {
	SecretKey  string
	BaseURL    string
	httpClient *http.Client
}

// NewPaystackClient creates and returns a new instance of PaystackClient.
func NewPaystackClient(secretKey string) *PaystackClient {
	return &PaystackClient{
		SecretKey:  secretKey,
		BaseURL:    "https://api.paystack.co",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifyWebhookSignature checks the x-paystack-signature header against an
// HMAC SHA512 of the raw request body keyed with the account secret.
func (p *PaystackClient) VerifyWebhookSignature(signature string, rawBody []byte) bool {
	if len(signature) == 0 || len(rawBody) == 0 {
		return false
	}

	mac := hmac.New(sha512.New, []byte(p.SecretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// VerifyTransaction confirms a charge reference directly with Paystack. Webhook
// handlers call this before trusting the amounts carried in the event payload.
func (p *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*PaystackTransaction, error) {
	body, err := p.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/transaction/verify/%s", reference), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status  bool                `json:"status"`
		Message string              `json:"message"`
		Data    PaystackTransaction `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transaction verification: %w", err)
	}
	if !result.Status {
		return nil, fmt.Errorf("transaction verification rejected: %s", result.Message)
	}
	return &result.Data, nil
}

// CreateRefund refunds part or all of a transaction. amountMinor is in the
// currency's smallest unit.
func (p *PaystackClient) CreateRefund(ctx context.Context, transactionID string, amountMinor int64) (*PaystackRefund, error) {
	payload := map[string]interface{}{
		"transaction": transactionID,
		"amount":      amountMinor,
	}
	body, err := p.makeRequest(ctx, http.MethodPost, "/refund", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status  bool           `json:"status"`
		Message string         `json:"message"`
		Data    PaystackRefund `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode refund response: %w", err)
	}
	if !result.Status {
		return nil, fmt.Errorf("refund rejected: %s", result.Message)
	}
	return &result.Data, nil
}

// makeRequest performs an authenticated call against the Paystack API and
// returns the raw response body.
func (p *PaystackClient) makeRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}
	return body, nil
}
