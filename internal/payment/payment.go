// Package payment wraps the external payment gateway: order creation,
// payment signature verification and inbound webhook parsing.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Gateway is the payment collaborator surface the engine depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (string, error)
	VerifySignature(orderRef, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}

// Client talks to a Razorpay-compatible REST gateway.
type Client struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	HTTPClient    *http.Client
}

func NewClient(baseURL, keyID, keySecret, webhookSecret string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		KeyID:         keyID,
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
		HTTPClient:    &http.Client{Timeout: defaultTimeout},
	}
}

type orderResponse struct {
	ID string `json:"id"`
}

// CreateOrder registers an order with the gateway and returns its reference.
func (c *Client) CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (string, error) {
	payload := map[string]any{
		"amount":   amountCents,
		"currency": currency,
		"receipt":  receipt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/orders", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("create order: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var order orderResponse
	if err := json.NewDecoder(res.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	if order.ID == "" {
		return "", fmt.Errorf("gateway returned empty order id")
	}
	return order.ID, nil
}

// VerifySignature checks the checkout callback signature: HMAC-SHA256 of
// "orderRef|paymentID" keyed with the API secret.
func (c *Client) VerifySignature(orderRef, paymentID, signature string) bool {
	return verifyHMAC(c.KeySecret, orderRef+"|"+paymentID, signature)
}

// VerifyWebhook checks the webhook body signature against the webhook secret.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func verifyHMAC(secret, message, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookEvent is the inbound payment-status notification, keyed by the
// gateway order reference.
type WebhookEvent struct {
	Event     string
	OrderRef  string
	PaymentID string
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook decodes a webhook body into the fields the engine needs.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	if wb.Event == "" {
		return WebhookEvent{}, fmt.Errorf("webhook missing event")
	}
	return WebhookEvent{
		Event:     wb.Event,
		OrderRef:  wb.Payload.Payment.Entity.OrderID,
		PaymentID: wb.Payload.Payment.Entity.ID,
	}, nil
}

// Sign computes the checkout signature for an order/payment pair. Used by
// tests and by local development against a stub gateway.
func Sign(secret, orderRef, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
