package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/webhook"
)

func TestParseRazorpayEvents(t *testing.T) {
	cases := []struct {
		name string
		body string
		want webhook.Event
	}{
		{
			name: "captured",
			body: `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`,
			want: webhook.PaymentCaptured{Base: webhook.Base{Gateway: gateway.Razorpay, Type: "payment.captured"}, OrderRef: "order_1", PaymentID: "pay_1"},
		},
		{
			name: "failed",
			body: `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","status":"failed"}}}}`,
			want: webhook.PaymentFailed{Base: webhook.Base{Gateway: gateway.Razorpay, Type: "payment.failed"}, OrderRef: "order_2"},
		},
		{
			name: "refund processed",
			body: `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1"}}}}`,
			want: webhook.PaymentRefunded{Base: webhook.Base{Gateway: gateway.Razorpay, Type: "refund.processed"}, PaymentRef: "pay_1"},
		},
		{
			name: "unknown",
			body: `{"event":"order.paid","payload":{}}`,
			want: webhook.Unknown{Base: webhook.Base{Gateway: gateway.Razorpay, Type: "order.paid"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := webhook.Parse(gateway.Razorpay, []byte(tc.body))
			require.NoError(t, err)
			require.Equal(t, tc.want, ev)
		})
	}
}

func TestParseStripeEvents(t *testing.T) {
	ev, err := webhook.Parse(gateway.Stripe, []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_BKG-1","object":"payment_intent"}}}`))
	require.NoError(t, err)
	require.Equal(t, webhook.PaymentCaptured{Base: webhook.Base{Gateway: gateway.Stripe, Type: "payment_intent.succeeded"}, OrderRef: "pi_BKG-1"}, ev)

	ev, err = webhook.Parse(gateway.Stripe, []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_BKG-2"}}}`))
	require.NoError(t, err)
	require.Equal(t, webhook.PaymentFailed{Base: webhook.Base{Gateway: gateway.Stripe, Type: "payment_intent.payment_failed"}, OrderRef: "pi_BKG-2"}, ev)

	ev, err = webhook.Parse(gateway.Stripe, []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_BKG-1"}}}`))
	require.NoError(t, err)
	require.Equal(t, "pi_BKG-1", ev.(webhook.PaymentRefunded).PaymentRef)

	ev, err = webhook.Parse(gateway.Stripe, []byte(`{"id":"evt_4","type":"charge.refund.updated","data":{"object":{"id":"re_1","payment_intent":{"id":"pi_BKG-3"}}}}`))
	require.NoError(t, err)
	require.Equal(t, "pi_BKG-3", ev.(webhook.PaymentRefunded).PaymentRef)

	ev, err = webhook.Parse(gateway.Stripe, []byte(`{"id":"evt_5","type":"customer.created","data":{"object":{"id":"cus_1"}}}`))
	require.NoError(t, err)
	require.IsType(t, webhook.Unknown{}, ev)
}

func TestParseMalformed(t *testing.T) {
	_, err := webhook.Parse(gateway.Razorpay, []byte(`{not json`))
	require.ErrorIs(t, err, webhook.ErrMalformedPayload)

	_, err = webhook.Parse(gateway.Stripe, []byte(`[]`))
	require.ErrorIs(t, err, webhook.ErrMalformedPayload)

	_, err = webhook.Parse(gateway.Name("paypal"), []byte(`{}`))
	require.ErrorIs(t, err, gateway.ErrUnsupportedGateway)
}
