package clients

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewPaystackClient("sk_test_secret")
	body := []byte(`{"event":"charge.success","data":{"reference":"ref_123"}}`)

	t.Run("valid signature", func(t *testing.T) {
		sig := signBody("sk_test_secret", body)
		assert.True(t, client.VerifyWebhookSignature(sig, body))
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := signBody("sk_other_secret", body)
		assert.False(t, client.VerifyWebhookSignature(sig, body))
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := signBody("sk_test_secret", body)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"ref_999"}}`)
		assert.False(t, client.VerifyWebhookSignature(sig, tampered))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, client.VerifyWebhookSignature("", body))
	})

	t.Run("empty body", func(t *testing.T) {
		sig := signBody("sk_test_secret", body)
		assert.False(t, client.VerifyWebhookSignature(sig, nil))
	})
}
