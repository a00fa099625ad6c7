// Package gateway talks to the external payment processor. Inbound webhook
// notifications are decoded into a closed set of Event kinds.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDisabled         = errors.New("payment gateway is not configured")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedEvent   = errors.New("malformed webhook payload")
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")
)

// Metadata keys written on every intent and session.
const (
	MetaPaymentID  = "payment_id"
	MetaPaymentIDs = "payment_ids"
	MetaContractID = "contract_id"
)

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentCanceled              IntentStatus = "canceled"
)

// Split routes part of the charge to the provider's connected account.
type Split struct {
	Destination    string
	ApplicationFee decimal.Decimal
}

type IntentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
	Split       *Split
}

type LineItem struct {
	Name   string
	Amount decimal.Decimal
}

type CheckoutRequest struct {
	Currency   string
	Items      []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
	Split      *Split
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	ChargeID     string
	TransferID   string
	Metadata     map[string]string
}

type Session struct {
	ID       string
	URL      string
	IntentID string
	Metadata map[string]string
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ParseEvent(payload []byte, signature string) (Event, error)
}

// Reference is what every event carries to resolve it to payments.
type Reference struct {
	EventID   string
	IntentID  string
	SessionID string
	ChargeID  string
	Metadata  map[string]string
}

// PaymentIDs returns the payment ids embedded in metadata, batch ids first.
// Entries that are not valid uuids are returned separately.
func (r Reference) PaymentIDs() (ids []uuid.UUID, invalid []string) {
	seen := make(map[uuid.UUID]struct{})
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			invalid = append(invalid, raw)
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, raw := range strings.Split(r.Metadata[MetaPaymentIDs], ",") {
		add(raw)
	}
	add(r.Metadata[MetaPaymentID])
	return ids, invalid
}

// Event is one of CheckoutCompleted, PaymentSucceeded, PaymentFailed or ChargeRefunded.
type Event interface {
	Ref() Reference
	event()
}

type CheckoutCompleted struct {
	Reference
	Paid bool
}

type PaymentSucceeded struct {
	Reference
	TransferID string
}

type PaymentFailed struct {
	Reference
	Reason string
}

type ChargeRefunded struct {
	Reference
	RefundID string
}

func (e CheckoutCompleted) Ref() Reference { return e.Reference }
func (e PaymentSucceeded) Ref() Reference  { return e.Reference }
func (e PaymentFailed) Ref() Reference     { return e.Reference }
func (e ChargeRefunded) Ref() Reference    { return e.Reference }

func (CheckoutCompleted) event() {}
func (PaymentSucceeded) event()  {}
func (PaymentFailed) event()     {}
func (ChargeRefunded) event()    {}

// Disabled is used when no gateway credentials are configured.
type Disabled struct{}

func (Disabled) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return nil, ErrDisabled
}

func (Disabled) CreateCheckout(context.Context, CheckoutRequest) (*Session, error) {
	return nil, ErrDisabled
}

func (Disabled) GetIntent(context.Context, string) (*Intent, error) {
	return nil, ErrDisabled
}

func (Disabled) GetSession(context.Context, string) (*Session, error) {
	return nil, ErrDisabled
}

func (Disabled) ParseEvent([]byte, string) (Event, error) {
	return nil, ErrDisabled
}
