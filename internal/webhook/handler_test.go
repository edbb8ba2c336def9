package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/webhook"
)

const (
	razorpaySecret = "rzp_whsec"
	stripeSecret   = "whsec_test"
)

func signRazorpay(body string) string {
	mac := hmac.New(sha256.New, []byte(razorpaySecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

type fixture struct {
	ledger  *escrow.Ledger
	logs    *webhook.MemoryLogStore
	handler *webhook.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := newTestLedger(t)
	logs := &webhook.MemoryLogStore{}
	h := &webhook.Handler{
		Verifier:   gateway.Verifier{RazorpaySecret: razorpaySecret, StripeSecret: stripeSecret},
		Logs:       logs,
		Reconciler: &webhook.Reconciler{Ledger: ledger, Logger: zerolog.Nop()},
		Logger:     zerolog.Nop(),
	}
	return &fixture{ledger: ledger, logs: logs, handler: h}
}

func (f *fixture) post(t *testing.T, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) status(t *testing.T, bookingID string) escrow.Status {
	t.Helper()
	rec, err := f.ledger.FindByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return rec.Status
}

const capturedBody = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`

func TestWebhookRazorpayCaptureEndToEnd(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)

	res := f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": signRazorpay(capturedBody)})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ok", res.Body.String())
	require.Equal(t, escrow.StatusCaptured, f.status(t, "BKG-1"))

	logs, err := f.logs.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.True(t, logs[0].SignatureValid)
	require.Equal(t, "payment.captured", logs[0].EventType)
	require.Equal(t, "razorpay", logs[0].Gateway)
	require.JSONEq(t, capturedBody, string(logs[0].RawPayload))
}

func TestWebhookReplayAppliesOnce(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)
	sig := signRazorpay(capturedBody)

	for i := 0; i < 3; i++ {
		res := f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": sig})
		require.Equal(t, http.StatusOK, res.Code)
	}
	rec, err := f.ledger.FindByBooking(context.Background(), "BKG-1")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusCaptured, rec.Status)

	logs, _ := f.logs.Recent(context.Background(), 10)
	require.Len(t, logs, 3)
}

func TestWebhookUnknownRefundIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)
	body := `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_9","payment_id":"pay_unknown"}}}}`

	res := f.post(t, body, map[string]string{"X-Razorpay-Signature": signRazorpay(body)})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, escrow.StatusCreated, f.status(t, "BKG-1"))
}

func TestWebhookInvalidSignatureIsLoggedButNotApplied(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)

	res := f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": "deadbeef"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid signature", res.Body.String())
	require.Equal(t, escrow.StatusCreated, f.status(t, "BKG-1"))

	logs, _ := f.logs.Recent(context.Background(), 10)
	require.Len(t, logs, 1)
	require.False(t, logs[0].SignatureValid)
	require.Equal(t, "deadbeef", logs[0].Signature)
}

func TestWebhookRejectsNonPost(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/webhooks/payment", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestWebhookWithoutSignatureHeader(t *testing.T) {
	f := newFixture(t)
	res := f.post(t, capturedBody, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "unknown webhook", res.Body.String())

	logs, _ := f.logs.Recent(context.Background(), 10)
	require.Empty(t, logs)
}

func TestWebhookParseFailure(t *testing.T) {
	f := newFixture(t)
	body := `{"event":`
	res := f.post(t, body, map[string]string{"X-Razorpay-Signature": signRazorpay(body)})
	require.Equal(t, http.StatusInternalServerError, res.Code)
	require.Contains(t, res.Body.String(), "malformed payload")

	logs, _ := f.logs.Recent(context.Background(), 10)
	require.Len(t, logs, 1)
	require.Empty(t, logs[0].EventType)
}

func TestWebhookStripeCapture(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-2", "stripe", "pi_BKG-2", 1200)
	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_BKG-2","object":"payment_intent"}}}`)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   body,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})

	res := f.post(t, string(body), map[string]string{"Stripe-Signature": signed.Header})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, escrow.StatusCaptured, f.status(t, "BKG-2"))
}

type failingLogStore struct{}

func (failingLogStore) Append(context.Context, webhook.LogEntry) error {
	return errors.New("disk full")
}

func (failingLogStore) Recent(context.Context, int) ([]webhook.LogEntry, error) {
	return nil, errors.New("disk full")
}

func TestWebhookLogFailureReturns500(t *testing.T) {
	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)
	f.handler.Logs = failingLogStore{}

	res := f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": signRazorpay(capturedBody)})
	require.Equal(t, http.StatusInternalServerError, res.Code)
	require.Equal(t, escrow.StatusCreated, f.status(t, "BKG-1"))
}

func TestWebhookReplayGuardSkipsDuplicateBodies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-1", "razorpay", "order_1", 500)
	f.handler.Replay = webhook.RedisReplayGuard{Client: client}
	f.handler.ReplayTTL = time.Hour
	sig := signRazorpay(capturedBody)

	require.Equal(t, http.StatusOK, f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": sig}).Code)
	require.Equal(t, http.StatusOK, f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": sig}).Code)
	require.Len(t, mr.Keys(), 1)
	require.True(t, strings.HasPrefix(mr.Keys()[0], "wh:razorpay:"))
	require.Equal(t, escrow.StatusCaptured, f.status(t, "BKG-1"))
}

func TestWebhookReplayGuardReleasedOnStorageError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.handler.Reconciler = &webhook.Reconciler{Ledger: failingLedger{}, Logger: zerolog.Nop()}
	f.handler.Replay = webhook.RedisReplayGuard{Client: client}
	f.handler.ReplayTTL = time.Hour

	res := f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": signRazorpay(capturedBody)})
	require.Equal(t, http.StatusInternalServerError, res.Code)
	require.Empty(t, mr.Keys())
}

func signStripe(body string) map[string]string {
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return map[string]string{"Stripe-Signature": signed.Header}
}

func TestWebhookEarlyRefundCanBeResentAfterCapture(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	seedEscrow(t, f.ledger, "BKG-3", "stripe", "pi_BKG-3", 900)
	f.handler.Replay = webhook.RedisReplayGuard{Client: client}
	f.handler.ReplayTTL = time.Hour

	refund := `{"id":"evt_r","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_BKG-3"}}}`
	captured := `{"id":"evt_c","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_BKG-3","object":"payment_intent"}}}`

	// Refund before capture is refused and leaves no replay key behind.
	require.Equal(t, http.StatusOK, f.post(t, refund, signStripe(refund)).Code)
	require.Equal(t, escrow.StatusCreated, f.status(t, "BKG-3"))
	require.Empty(t, mr.Keys())

	require.Equal(t, http.StatusOK, f.post(t, captured, signStripe(captured)).Code)
	require.Equal(t, escrow.StatusCaptured, f.status(t, "BKG-3"))

	require.Equal(t, http.StatusOK, f.post(t, refund, signStripe(refund)).Code)
	require.Equal(t, escrow.StatusRefunded, f.status(t, "BKG-3"))
}

func TestWebhookUnmatchedEventKeepsNoReplayKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.handler.Replay = webhook.RedisReplayGuard{Client: client}
	f.handler.ReplayTTL = time.Hour

	require.Equal(t, http.StatusOK, f.post(t, capturedBody, map[string]string{"X-Razorpay-Signature": signRazorpay(capturedBody)}).Code)
	require.Empty(t, mr.Keys())
}

func TestLogsHandlerListsNewestFirst(t *testing.T) {
	logs := &webhook.MemoryLogStore{}
	ctx := context.Background()
	for _, typ := range []string{"payment.captured", "refund.processed", "payment.failed"} {
		require.NoError(t, logs.Append(ctx, webhook.LogEntry{Gateway: "razorpay", EventType: typ, ReceivedAt: time.Now()}))
	}
	h := &webhook.LogsHandler{Logs: logs}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhook-logs?limit=2", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []webhook.LogEntry `json:"data"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Limit)
	require.Len(t, body.Data, 2)
	require.Equal(t, "payment.failed", body.Data[0].EventType)
	require.Equal(t, "refund.processed", body.Data[1].EventType)
}

func TestLogsHandlerStoreError(t *testing.T) {
	h := &webhook.LogsHandler{Logs: failingLogStore{}}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhook-logs", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
