package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeTolerance is the maximum accepted age of a Stripe signature timestamp.
const StripeTolerance = 5 * time.Minute

// Verify authenticates a raw webhook body against the gateway's signature
// header. It fails closed: a missing secret or header is never valid.
func Verify(gw Name, rawBody []byte, signatureHeader, secret string) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if secret == "" || signatureHeader == "" {
		return false
	}
	switch gw {
	case Razorpay:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(rawBody)
		expected := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(signatureHeader))
	case Stripe:
		return webhook.ValidatePayloadWithTolerance(rawBody, signatureHeader, secret, StripeTolerance) == nil
	default:
		return false
	}
}

// Verifier holds the configured webhook secrets.
type Verifier struct {
	RazorpaySecret string
	StripeSecret   string
}

// Verify checks rawBody against signatureHeader with the secret for gw.
func (v Verifier) Verify(gw Name, rawBody []byte, signatureHeader string) bool {
	switch gw {
	case Razorpay:
		return Verify(gw, rawBody, signatureHeader, v.RazorpaySecret)
	case Stripe:
		return Verify(gw, rawBody, signatureHeader, v.StripeSecret)
	default:
		return false
	}
}
