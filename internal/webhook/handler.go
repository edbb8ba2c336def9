package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/obs"
)

const (
	headerRazorpaySignature = "X-Razorpay-Signature"
	headerStripeSignature   = "Stripe-Signature"

	defaultMaxBodyBytes = 1 << 20
)

// SignatureVerifier authenticates raw webhook bodies.
type SignatureVerifier interface {
	Verify(gw gateway.Name, rawBody []byte, signatureHeader string) bool
}

// Handler is the HTTP entry point for gateway webhooks. Gateways only read
// the status code, so responses are short plain-text bodies.
type Handler struct {
	Verifier     SignatureVerifier
	Logs         LogStore
	Reconciler   *Reconciler
	Replay       ReplayGuard
	ReplayTTL    time.Duration
	MaxBodyBytes int64
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		common.Text(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if h.Verifier == nil || h.Logs == nil || h.Reconciler == nil {
		common.Text(w, http.StatusInternalServerError, "webhook not configured")
		return
	}

	gw, signature, ok := detectGateway(r.Header)
	if !ok {
		obs.IncWebhook("unknown", "unknown_gateway")
		common.Text(w, http.StatusBadRequest, "unknown webhook")
		return
	}
	log := h.Logger.With().Str("gateway", string(gw)).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes()))
	if err != nil {
		obs.IncWebhook(string(gw), "unreadable_body")
		common.Text(w, http.StatusBadRequest, "invalid body")
		return
	}

	valid := h.Verifier.Verify(gw, body, signature)
	ev, parseErr := Parse(gw, body)
	entry := LogEntry{
		ID:             uuid.New(),
		Gateway:        string(gw),
		Signature:      signature,
		SignatureValid: valid,
		RawPayload:     body,
		ReceivedAt:     h.now(),
	}
	if parseErr == nil {
		entry.EventType = ev.EventType()
	}
	if err := h.Logs.Append(r.Context(), entry); err != nil {
		log.Error().Err(err).Msg("webhook_log_append_failed")
		obs.IncWebhook(string(gw), "log_error")
		common.Text(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !valid {
		log.Warn().Str("log_id", entry.ID.String()).Msg("webhook_signature_invalid")
		obs.IncWebhook(string(gw), "invalid_signature")
		common.Text(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if parseErr != nil {
		log.Error().Err(parseErr).Str("log_id", entry.ID.String()).Msg("webhook_parse_failed")
		obs.IncWebhook(string(gw), "parse_error")
		common.Text(w, http.StatusInternalServerError, parseErr.Error())
		return
	}

	replayKey := "wh:" + string(gw) + ":" + common.Sha256Hex(body)
	if h.Replay != nil && h.ReplayTTL > 0 {
		first, err := h.Replay.Acquire(r.Context(), replayKey, h.ReplayTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("webhook_replay_guard_unavailable")
		case !first:
			log.Info().Str("event_type", ev.EventType()).Msg("webhook_replay_skipped")
			obs.IncWebhook(string(gw), "replay")
			common.Text(w, http.StatusOK, "ok")
			return
		}
	}

	result, err := h.Reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		h.releaseReplay(r.Context(), replayKey, log)
		log.Error().Err(err).Str("event_type", ev.EventType()).Msg("webhook_reconcile_failed")
		obs.IncWebhook(string(gw), "error")
		common.Text(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch result.Outcome {
	case OutcomeRejected, OutcomeUnmatched:
		// Nothing changed, so a later resend of the same body must be
		// reconciled again once the escrow has caught up.
		h.releaseReplay(r.Context(), replayKey, log)
	}
	obs.IncWebhook(string(gw), string(result.Outcome))
	common.Text(w, http.StatusOK, "ok")
}

// detectGateway picks the gateway from the signature header present. Razorpay
// wins when both are sent.
func detectGateway(h http.Header) (gateway.Name, string, bool) {
	if sig := h.Get(headerRazorpaySignature); sig != "" {
		return gateway.Razorpay, sig, true
	}
	if sig := h.Get(headerStripeSignature); sig != "" {
		return gateway.Stripe, sig, true
	}
	return "", "", false
}

func (h *Handler) releaseReplay(ctx context.Context, key string, log zerolog.Logger) {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return
	}
	if err := h.Replay.Release(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("webhook_replay_release_failed")
	}
}

func (h *Handler) maxBodyBytes() int64 {
	if h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// LogsHandler lists recent webhook log entries for administrators.
type LogsHandler struct {
	Logs LogStore
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Logs == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook log store not configured", nil)
		return
	}
	limit := common.ClampInt(common.AtoiDefault(r.URL.Query().Get("limit"), 50), 1, 500)
	entries, err := h.Logs.Recent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load webhook logs", nil)
		return
	}
	if entries == nil {
		entries = []LogEntry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "limit": limit})
}
