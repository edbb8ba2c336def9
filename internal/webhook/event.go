package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/noah-isme/salon-escrow/internal/gateway"
)

// ErrMalformedPayload is returned when a webhook body cannot be decoded.
var ErrMalformedPayload = errors.New("webhook: malformed payload")

// Event is a verified gateway notification decoded into one of the concrete
// variants below.
type Event interface {
	GatewayName() gateway.Name
	EventType() string
	isEvent()
}

// Base carries fields common to every variant.
type Base struct {
	Gateway gateway.Name
	Type    string
}

func (b Base) GatewayName() gateway.Name { return b.Gateway }
func (b Base) EventType() string         { return b.Type }
func (Base) isEvent()                    {}

// PaymentCaptured reports a successful payment for OrderRef.
type PaymentCaptured struct {
	Base
	OrderRef string
	// PaymentID is the gateway payment id when it differs from OrderRef.
	PaymentID string
}

// PaymentRefunded reports a refund against PaymentRef.
type PaymentRefunded struct {
	Base
	PaymentRef string
}

// PaymentFailed reports a failed payment attempt for OrderRef.
type PaymentFailed struct {
	Base
	OrderRef string
}

// Unknown is any event type the reconciler does not act on.
type Unknown struct {
	Base
}

type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// ParseRazorpay decodes a Razorpay webhook body.
func ParseRazorpay(body []byte) (Event, error) {
	var env razorpayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: razorpay: %v", ErrMalformedPayload, err)
	}
	base := Base{Gateway: gateway.Razorpay, Type: env.Event}
	switch {
	case env.Event == "payment.captured":
		ev := PaymentCaptured{Base: base}
		if p := env.Payload.Payment; p != nil {
			ev.OrderRef = p.Entity.OrderID
			ev.PaymentID = p.Entity.ID
		}
		return ev, nil
	case env.Event == "payment.failed":
		ev := PaymentFailed{Base: base}
		if p := env.Payload.Payment; p != nil {
			ev.OrderRef = p.Entity.OrderID
		}
		return ev, nil
	case strings.HasPrefix(env.Event, "refund."):
		ev := PaymentRefunded{Base: base}
		if r := env.Payload.Refund; r != nil {
			ev.PaymentRef = r.Entity.PaymentID
		}
		return ev, nil
	default:
		return Unknown{Base: base}, nil
	}
}

// stripeObject covers the fields read from payment_intent and charge/refund objects.
type stripeObject struct {
	ID            string          `json:"id"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
}

// ParseStripe decodes a Stripe webhook body.
func ParseStripe(body []byte) (Event, error) {
	var env stripe.Event
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: stripe: %v", ErrMalformedPayload, err)
	}
	eventType := string(env.Type)
	base := Base{Gateway: gateway.Stripe, Type: eventType}
	var obj stripeObject
	if env.Data != nil && len(env.Data.Raw) > 0 {
		if err := json.Unmarshal(env.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: stripe object: %v", ErrMalformedPayload, err)
		}
	}
	switch {
	case env.Type == stripe.EventTypePaymentIntentSucceeded:
		return PaymentCaptured{Base: base, OrderRef: obj.ID}, nil
	case env.Type == stripe.EventTypePaymentIntentPaymentFailed:
		return PaymentFailed{Base: base, OrderRef: obj.ID}, nil
	case strings.HasPrefix(eventType, "charge.refund"):
		ref, err := expandableID(obj.PaymentIntent)
		if err != nil {
			return nil, err
		}
		return PaymentRefunded{Base: base, PaymentRef: ref}, nil
	default:
		return Unknown{Base: base}, nil
	}
}

// expandableID reads a Stripe field that is either an id string or an
// expanded object carrying an id.
func expandableID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: stripe payment_intent: %v", ErrMalformedPayload, err)
	}
	return obj.ID, nil
}

// Parse dispatches to the gateway-specific parser.
func Parse(gw gateway.Name, body []byte) (Event, error) {
	switch gw {
	case gateway.Razorpay:
		return ParseRazorpay(body)
	case gateway.Stripe:
		return ParseStripe(body)
	default:
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnsupportedGateway, gw)
	}
}
