package webhook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/split"
	"github.com/noah-isme/salon-escrow/internal/webhook"
)

func newTestLedger(t *testing.T) *escrow.Ledger {
	t.Helper()
	calc := &split.Calculator{Rules: split.NewMemoryRuleStore(), Fallback: split.Rule{StorePct: 40, FreelancerPct: 40, PlatformPct: 20}}
	return escrow.NewLedger(escrow.NewMemoryStore(), calc, nil, nil, zerolog.Nop())
}

func seedEscrow(t *testing.T, ledger *escrow.Ledger, bookingID, gw, ref string, amount int64) escrow.Record {
	t.Helper()
	rec, err := ledger.CreateEscrow(context.Background(), escrow.CreateParams{
		BookingID:    bookingID,
		StoreID:      "store-1",
		FreelancerID: "free-1",
		ServiceID:    "svc-1",
		Gateway:      gw,
		Mode:         "sandbox",
		GatewayRef:   ref,
		Currency:     "INR",
		Amount:       amount,
	})
	require.NoError(t, err)
	return rec
}

func razorpayBase(typ string) webhook.Base {
	return webhook.Base{Gateway: gateway.Razorpay, Type: typ}
}

func TestReconcileCaptureThenRefundByPaymentID(t *testing.T) {
	ledger := newTestLedger(t)
	seedEscrow(t, ledger, "BKG-1", "razorpay", "order_1", 500)
	r := &webhook.Reconciler{Ledger: ledger, Logger: zerolog.Nop()}
	ctx := context.Background()

	res, err := r.Reconcile(ctx, webhook.PaymentCaptured{Base: razorpayBase("payment.captured"), OrderRef: "order_1", PaymentID: "pay_1"})
	require.NoError(t, err)
	require.Equal(t, webhook.Result{Outcome: webhook.OutcomeApplied, BookingID: "BKG-1", Status: escrow.StatusCaptured}, res)

	rec, err := ledger.FindByBooking(ctx, "BKG-1")
	require.NoError(t, err)
	require.Equal(t, "pay_1", rec.PaymentRef)

	res, err = r.Reconcile(ctx, webhook.PaymentRefunded{Base: razorpayBase("refund.processed"), PaymentRef: "pay_1"})
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeApplied, res.Outcome)
	require.Equal(t, escrow.StatusRefunded, res.Status)
}

func TestReconcileReplayIsNoop(t *testing.T) {
	ledger := newTestLedger(t)
	seedEscrow(t, ledger, "BKG-1", "razorpay", "order_1", 500)
	r := &webhook.Reconciler{Ledger: ledger, Logger: zerolog.Nop()}
	ev := webhook.PaymentCaptured{Base: razorpayBase("payment.captured"), OrderRef: "order_1", PaymentID: "pay_1"}

	first, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeApplied, first.Outcome)

	second, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeNoop, second.Outcome)
	require.Equal(t, escrow.StatusCaptured, second.Status)
}

func TestReconcileUnmatchedReference(t *testing.T) {
	ledger := newTestLedger(t)
	r := &webhook.Reconciler{Ledger: ledger, Logger: zerolog.Nop()}

	res, err := r.Reconcile(context.Background(), webhook.PaymentRefunded{Base: razorpayBase("refund.processed"), PaymentRef: "pay_unknown"})
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeUnmatched, res.Outcome)

	res, err = r.Reconcile(context.Background(), webhook.PaymentRefunded{Base: razorpayBase("refund.processed")})
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeUnmatched, res.Outcome)
}

func TestReconcileRejectsOutOfOrderRefund(t *testing.T) {
	ledger := newTestLedger(t)
	seedEscrow(t, ledger, "BKG-1", "razorpay", "order_1", 500)
	r := &webhook.Reconciler{Ledger: ledger, Logger: zerolog.Nop()}

	res, err := r.Reconcile(context.Background(), webhook.PaymentRefunded{Base: razorpayBase("refund.processed"), PaymentRef: "order_1"})
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeRejected, res.Outcome)
	require.Equal(t, escrow.StatusCreated, res.Status)
}

func TestReconcileIgnoresUnknownEvents(t *testing.T) {
	r := &webhook.Reconciler{Ledger: newTestLedger(t), Logger: zerolog.Nop()}
	res, err := r.Reconcile(context.Background(), webhook.Unknown{Base: razorpayBase("order.paid")})
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeIgnored, res.Outcome)
}

type failingLedger struct{}

func (failingLedger) FindByGatewayRef(context.Context, string, string) (escrow.Record, error) {
	return escrow.Record{}, errors.New("connection reset")
}

func (failingLedger) TransitionWith(context.Context, escrow.Record, escrow.Status, escrow.TransitionOpts) (escrow.Record, bool, error) {
	return escrow.Record{}, false, nil
}

func TestReconcileSurfacesStorageErrors(t *testing.T) {
	r := &webhook.Reconciler{Ledger: failingLedger{}, Logger: zerolog.Nop()}
	_, err := r.Reconcile(context.Background(), webhook.PaymentFailed{Base: razorpayBase("payment.failed"), OrderRef: "order_1"})
	require.ErrorContains(t, err, "connection reset")
}
