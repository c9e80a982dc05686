package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureRoundTrip(t *testing.T) {
	c := NewClient("http://gateway.local", "key", "secret", "hook-secret")
	sig := Sign("secret", "order_1", "pay_1")
	if !c.VerifySignature("order_1", "pay_1", sig) {
		t.Fatal("valid signature rejected")
	}
	if c.VerifySignature("order_1", "pay_2", sig) {
		t.Fatal("signature for a different payment accepted")
	}
	if c.VerifySignature("order_1", "pay_1", sig+"00") {
		t.Fatal("tampered signature accepted")
	}
}

func TestVerifyWebhook(t *testing.T) {
	c := NewClient("http://gateway.local", "key", "secret", "hook-secret")
	body := []byte(`{"event":"payment.captured"}`)
	sig := hmacHex("hook-secret", body)
	if !c.VerifyWebhook(body, sig) {
		t.Fatal("valid webhook signature rejected")
	}
	if c.VerifyWebhook([]byte(`{"event":"payment.failed"}`), sig) {
		t.Fatal("signature over a different body accepted")
	}
	if c.VerifyWebhook(body, hmacHex("wrong-secret", body)) {
		t.Fatal("signature with wrong secret accepted")
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_9", "order_id": "order_9"}}}
	}`)
	evt, err := ParseWebhook(body)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Event != "payment.captured" || evt.OrderRef != "order_9" || evt.PaymentID != "pay_9" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestParseWebhookRejectsMissingEvent(t *testing.T) {
	if _, err := ParseWebhook([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing event")
	}
	if _, err := ParseWebhook([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
