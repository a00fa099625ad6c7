package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/nurpe/skillspot-settlement/internal/billing"
)

// Stripe is the Gateway backed by a configured Stripe client. Each instance
// owns its API key; nothing is set process-wide.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return NewStripeWithBackends(secretKey, webhookSecret, nil)
}

// NewStripeWithBackends lets callers point the client at a different API host.
func NewStripeWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api, webhookSecret: webhookSecret}
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(billing.ToMinorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Split != nil {
		params.ApplicationFeeAmount = stripe.Int64(billing.ToMinorUnits(req.Split.ApplicationFee, req.Currency))
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.Split.Destination),
		}
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	currency := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(billing.ToMinorUnits(item.Amount, req.Currency)),
			},
			Quantity: stripe.Int64(1),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Split != nil {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(billing.ToMinorUnits(req.Split.ApplicationFee, req.Currency))
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.Split.Destination),
		}
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sessionFromStripe(sess), nil
}

func (s *Stripe) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (s *Stripe) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve checkout session: %w", err)
	}
	return sessionFromStripe(sess), nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
// Without a webhook secret nothing can be verified, so every payload is refused.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return convertEvent(event)
}

// DecodeEvent decodes a stored event without signature verification. It is
// meant for operator replays of payloads that were verified when received.
func DecodeEvent(payload []byte) (Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return convertEvent(event)
}

func convertEvent(event stripe.Event) (Event, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrMalformedEvent, event.ID)
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ref := Reference{EventID: event.ID, SessionID: sess.ID, Metadata: sess.Metadata}
		if sess.PaymentIntent != nil {
			ref.IntentID = sess.PaymentIntent.ID
		}
		return CheckoutCompleted{
			Reference: ref,
			Paid:      sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}, nil

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		intent := intentFromStripe(&pi)
		return PaymentSucceeded{
			Reference: Reference{
				EventID:  event.ID,
				IntentID: intent.ID,
				ChargeID: intent.ChargeID,
				Metadata: intent.Metadata,
			},
			TransferID: intent.TransferID,
		}, nil

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		return PaymentFailed{
			Reference: Reference{EventID: event.ID, IntentID: pi.ID, Metadata: pi.Metadata},
			Reason:    reason,
		}, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ref := Reference{EventID: event.ID, ChargeID: ch.ID, Metadata: ch.Metadata}
		if ch.PaymentIntent != nil {
			ref.IntentID = ch.PaymentIntent.ID
		}
		refundID := ""
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
			refundID = ch.Refunds.Data[0].ID
		}
		return ChargeRefunded{Reference: ref, RefundID: refundID}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.ChargeID = pi.LatestCharge.ID
		if pi.LatestCharge.Transfer != nil {
			intent.TransferID = pi.LatestCharge.Transfer.ID
		}
	}
	return intent
}

func sessionFromStripe(sess *stripe.CheckoutSession) *Session {
	session := &Session{ID: sess.ID, URL: sess.URL, Metadata: sess.Metadata}
	if sess.PaymentIntent != nil {
		session.IntentID = sess.PaymentIntent.ID
	}
	return session
}
