// Package payments wraps the external payment provider. Only order
// creation and the verification contract are implemented here; the
// provider's remaining APIs are out of scope.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Order is the provider-side order created for an online booking.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Provider creates orders with the external payment service.
type Provider interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
}

// RazorpayClient talks to the Razorpay orders API over REST.
type RazorpayClient struct {
	http   *resty.Client
	keyID  string
	secret string
}

func NewRazorpayClient(baseURL, keyID, secret string) *RazorpayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, secret).
		SetHeader("Content-Type", "application/json")
	return &RazorpayClient{http: client, keyID: keyID, secret: secret}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	var order Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"amount":   amount,
			"currency": currency,
			"receipt":  receipt,
		}).
		SetResult(&order).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create payment order: provider returned %s", resp.Status())
	}
	return &order, nil
}

// Sign computes the provider's checkout signature: hex-encoded
// HMAC-SHA256 over "orderID|paymentID".
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a checkout signature in constant time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook checks the webhook signature: hex-encoded HMAC-SHA256
// over the raw request body.
func VerifyWebhook(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
