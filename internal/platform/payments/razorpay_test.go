package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	sig := Sign("order_123", "pay_456", "secret")
	if !VerifySignature("order_123", "pay_456", sig, "secret") {
		t.Error("expected signature to verify")
	}
}

func TestVerifySignature_Forged(t *testing.T) {
	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{"wrong signature", "order_123", "pay_456", "deadbeef"},
		{"signature for other order", "order_123", "pay_456", Sign("order_999", "pay_456", "secret")},
		{"signature with other secret", "order_123", "pay_456", Sign("order_123", "pay_456", "other")},
		{"empty signature", "order_123", "pay_456", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(tc.orderID, tc.paymentID, tc.signature, "secret") {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := webhookSig(body, "whsecret")
	if !VerifyWebhook(body, sig, "whsecret") {
		t.Error("expected webhook signature to verify")
	}
	if VerifyWebhook(body, sig, "wrong-secret") {
		t.Error("expected mismatched secret to fail")
	}
	if VerifyWebhook([]byte(`{"event":"tampered"}`), sig, "whsecret") {
		t.Error("expected tampered body to fail")
	}
}

// webhookSig mirrors the provider's webhook signing for tests.
func webhookSig(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["amount"].(float64) != 50000 {
			t.Errorf("unexpected amount %v", req["amount"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Order{
			ID: "order_abc", Amount: 50000, Currency: "INR", Status: "created",
		})
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "key", "secret")
	order, err := client.CreateOrder(context.Background(), 50000, "INR", "queue-1")
	if err != nil {
		t.Fatal(err)
	}
	if order.ID != "order_abc" || order.Currency != "INR" {
		t.Errorf("unexpected order: %+v", order)
	}
}

func TestCreateOrder_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "key", "bad-secret")
	if _, err := client.CreateOrder(context.Background(), 100, "INR", "queue-1"); err == nil {
		t.Error("expected error on provider failure")
	}
}
