package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/billing"
	"github.com/nurpe/skillspot-settlement/internal/config"
	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

type LedgerRenderer interface {
	Render(statement model.LedgerStatement) ([]byte, error)
}

type PaymentService struct {
	store      *repository.Store
	gateway    gateway.Gateway
	reconciler *Reconciler
	excel      LedgerRenderer
	cfg        config.PaymentsConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewPaymentService(
	store *repository.Store,
	gw gateway.Gateway,
	reconciler *Reconciler,
	excel LedgerRenderer,
	cfg config.PaymentsConfig,
	log zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		store:      store,
		gateway:    gw,
		reconciler: reconciler,
		excel:      excel,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreatePaymentInput struct {
	Principal     model.Principal
	ContractID    uuid.UUID
	MilestoneID   *uuid.UUID
	TimeEntryID   *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod model.PaymentMethod
	Description   string
}

// CreatePayment opens a PENDING payment for one billing unit of an active
// contract. The fee split is fixed at this point.
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*model.Payment, error) {
	if input.MilestoneID != nil && input.TimeEntryID != nil {
		return nil, fmt.Errorf("%w: milestone_id and time_entry_id are mutually exclusive", ErrInvalidInput)
	}
	method := input.PaymentMethod
	if method == "" {
		method = model.PaymentMethodStripe
	}
	switch method {
	case model.PaymentMethodStripe, model.PaymentMethodBankTransfer, model.PaymentMethodOther:
	default:
		return nil, fmt.Errorf("%w: unknown payment_method %q", ErrInvalidInput, method)
	}

	var payment *model.Payment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		contract, err := tx.Contracts.Lock(ctx, input.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if contract.ClientID != input.Principal.UserID {
			return fmt.Errorf("%w: only the contract client can make payments", ErrPermissionDenied)
		}
		if contract.Status != model.ContractStatusActive {
			return fmt.Errorf("%w: payments can only be made on active contracts", ErrPreconditionFailed)
		}

		unit, err := s.resolveUnit(ctx, tx, contract, input)
		if err != nil {
			return err
		}

		var unitKind model.BillingUnit
		var unitID *uuid.UUID
		switch {
		case unit.TimeEntry != nil:
			unitKind, unitID = model.BillingUnitTimeEntry, &unit.TimeEntry.ID
		case unit.Milestone != nil:
			unitKind, unitID = model.BillingUnitMilestone, &unit.Milestone.ID
		default:
			unitKind = model.BillingUnitContract
		}
		taken, err := unitSettled(ctx, tx, contract, unitKind, unitID, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %w: this billing unit has already been paid", ErrConflict, ErrInvalidInput)
		}

		amount, err := billing.ValidateAmount(contract, unit, input.Amount)
		if err != nil {
			return billingError(err)
		}
		currency := normalizeCurrency(input.Currency)
		if currency == "" {
			currency = contract.Currency
		}
		if currency != contract.Currency {
			return fmt.Errorf("%w: currency must match the contract currency %s", ErrInvalidInput, contract.Currency)
		}

		fee, providerAmount, err := billing.SplitFee(amount, s.cfg.PlatformFeePercent)
		if err != nil {
			return billingError(err)
		}

		payment = &model.Payment{
			ID:             uuid.New(),
			ContractID:     contract.ID,
			MilestoneID:    input.MilestoneID,
			TimeEntryID:    input.TimeEntryID,
			PayerID:        contract.ClientID,
			RecipientID:    contract.ProviderID,
			Amount:         amount,
			Currency:       currency,
			Status:         model.PaymentStatusPending,
			PaymentMethod:  method,
			Description:    input.Description,
			FeePercent:     s.cfg.PlatformFeePercent,
			PlatformFee:    fee,
			ProviderAmount: decimal.NewNullDecimal(providerAmount),
		}
		if err := tx.Payments.Create(ctx, payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: payment already exists", ErrConflict)
			}
			return err
		}
		_, err = tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
			PaymentID:       payment.ID,
			TransactionType: model.TransactionTypeCreated,
			Details: datatypes.JSONMap{
				"amount":       amount.StringFixed(2),
				"platform_fee": fee.StringFixed(2),
				"fee_percent":  s.cfg.PlatformFeePercent.String(),
				"unit":         string(unitKind),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.Payments.GetWithTransactions(ctx, payment.ID)
}

func (s *PaymentService) resolveUnit(ctx context.Context, tx *repository.Store, contract *model.Contract, input CreatePaymentInput) (billing.Unit, error) {
	var unit billing.Unit
	switch {
	case input.TimeEntryID != nil:
		entry, err := tx.Units.GetTimeEntry(ctx, *input.TimeEntryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unit, fmt.Errorf("%w: time entry not found", ErrInvalidInput)
			}
			return unit, err
		}
		if entry.ContractID != contract.ID {
			return unit, fmt.Errorf("%w: time entry does not belong to this contract", ErrInvalidInput)
		}
		switch entry.Status {
		case model.TimeEntryStatusApproved:
		case model.TimeEntryStatusPaid:
			return unit, fmt.Errorf("%w: %w: time entry has already been paid", ErrConflict, ErrInvalidInput)
		default:
			return unit, fmt.Errorf("%w: only approved time entries can be paid", ErrInvalidInput)
		}
		unit.TimeEntry = entry

	case input.MilestoneID != nil:
		milestone, err := tx.Units.GetMilestone(ctx, *input.MilestoneID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unit, fmt.Errorf("%w: milestone not found", ErrInvalidInput)
			}
			return unit, err
		}
		if milestone.ContractID != contract.ID {
			return unit, fmt.Errorf("%w: milestone does not belong to this contract", ErrInvalidInput)
		}
		if milestone.Status == model.MilestoneStatusCancelled {
			return unit, fmt.Errorf("%w: cancelled milestones cannot be paid", ErrInvalidInput)
		}
		unit.Milestone = milestone
	}
	return unit, nil
}

// Get returns the payment with its audit trail to its payer or recipient.
func (s *PaymentService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Payment, error) {
	payment, err := s.store.Payments.GetWithTransactions(ctx, id)
	if err != nil {
		return nil, notFound(err, "payment")
	}
	if payment.PayerID != principal.UserID && payment.RecipientID != principal.UserID {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	return payment, nil
}

type ListPaymentsInput struct {
	Principal   model.Principal
	ContractID  *uuid.UUID
	Status      *model.PaymentStatus
	MilestoneID *uuid.UUID
	TimeEntryID *uuid.UUID
	Mine        bool
}

// List shows a payer the payments they made and a provider the payments they
// are due.
func (s *PaymentService) List(ctx context.Context, input ListPaymentsInput) ([]model.Payment, error) {
	filter := repository.PaymentFilter{
		UserID:      input.Principal.UserID,
		ContractID:  input.ContractID,
		Status:      input.Status,
		MilestoneID: input.MilestoneID,
		TimeEntryID: input.TimeEntryID,
	}
	switch {
	case input.Principal.CanHire() && input.Principal.CanProvide():
		filter.Role = repository.RoleEither
		if input.Mine {
			filter.Role = repository.RolePayer
		}
	case input.Principal.CanHire():
		filter.Role = repository.RolePayer
	default:
		filter.Role = repository.RoleRecipient
	}
	return s.store.Payments.List(ctx, filter)
}

// History lists every payment the user made or received, newest first.
func (s *PaymentService) History(ctx context.Context, principal model.Principal) ([]model.Payment, error) {
	return s.store.Payments.List(ctx, repository.PaymentFilter{UserID: principal.UserID, Role: repository.RoleEither})
}

type IntentResult struct {
	Payment      *model.Payment `json:"payment"`
	IntentID     string         `json:"payment_intent_id"`
	ClientSecret string         `json:"client_secret"`
}

// StartIntent creates a gateway payment intent for a PENDING payment. The
// gateway call happens before any state change, so a gateway failure leaves
// the payment PENDING.
func (s *PaymentService) StartIntent(ctx context.Context, principal model.Principal, paymentID uuid.UUID) (*IntentResult, error) {
	payment, contract, err := s.loadPayable(ctx, principal, paymentID)
	if err != nil {
		return nil, err
	}
	split, err := s.split(ctx, payment)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		gateway.MetaPaymentID:  payment.ID.String(),
		gateway.MetaContractID: contract.ID.String(),
	}
	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: paymentDescription(payment, contract),
		Metadata:    metadata,
		Split:       split,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	err = s.markProcessing(ctx, []uuid.UUID{payment.ID}, map[string]interface{}{
		"gateway_payment_intent_id": intent.ID,
	}, metadata, intent.ID, datatypes.JSONMap{"payment_intent": intent.ID})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Payments.GetWithTransactions(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	return &IntentResult{Payment: updated, IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

type CheckoutInput struct {
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	Payments    []model.Payment `json:"payments"`
	SessionID   string          `json:"session_id"`
	CheckoutURL string          `json:"checkout_url"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
}

// StartCheckout creates a hosted checkout session for a single payment.
func (s *PaymentService) StartCheckout(ctx context.Context, principal model.Principal, paymentID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	payment, contract, err := s.loadPayable(ctx, principal, paymentID)
	if err != nil {
		return nil, err
	}
	split, err := s.split(ctx, payment)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.cfg.FrontendURL, "/") + "/payments/" + payment.ID.String()
	successURL, cancelURL := input.SuccessURL, input.CancelURL
	if successURL == "" {
		successURL = base + "?status=success"
	}
	if cancelURL == "" {
		cancelURL = base
	}

	metadata := map[string]string{
		gateway.MetaPaymentID:  payment.ID.String(),
		gateway.MetaContractID: contract.ID.String(),
	}
	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Currency: payment.Currency,
		Items: []gateway.LineItem{{
			Name:   paymentDescription(payment, contract),
			Amount: payment.Amount,
		}},
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   metadata,
		Split:      split,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	fields := map[string]interface{}{"gateway_session_id": session.ID}
	if session.IntentID != "" {
		fields["gateway_payment_intent_id"] = session.IntentID
	}
	if err := s.markProcessing(ctx, []uuid.UUID{payment.ID}, fields, metadata, session.ID,
		datatypes.JSONMap{"checkout_session": session.ID}); err != nil {
		return nil, err
	}

	updated, err := s.store.Payments.Get(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		Payments:    []model.Payment{*updated},
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Total:       payment.Amount,
		Currency:    payment.Currency,
	}, nil
}

// BatchCheckout pays every approved, unpaid time entry of an hourly contract
// through one checkout session. Open payments of the entries are reused.
func (s *PaymentService) BatchCheckout(ctx context.Context, principal model.Principal, contractID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	var contract *model.Contract
	var payments []model.Payment
	var items []gateway.LineItem
	total := decimal.Zero
	fee := decimal.Zero

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		contract, err = tx.Contracts.Lock(ctx, contractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if contract.ClientID != principal.UserID {
			return fmt.Errorf("%w: only the contract client can make payments", ErrPermissionDenied)
		}
		if contract.Status != model.ContractStatusActive {
			return fmt.Errorf("%w: payments can only be made on active contracts", ErrPreconditionFailed)
		}
		if contract.PaymentSchedule != model.PaymentScheduleHourly {
			return fmt.Errorf("%w: batch checkout is only available for hourly contracts", ErrInvalidInput)
		}

		approved := model.TimeEntryStatusApproved
		entries, err := tx.Units.ListTimeEntries(ctx, contract.ID, &approved)
		if err != nil {
			return err
		}
		for i := range entries {
			entry := &entries[i]
			paid, err := tx.Payments.HasCompleted(ctx, contract.ID, model.BillingUnitTimeEntry, &entry.ID, uuid.Nil)
			if err != nil {
				return err
			}
			if paid {
				continue
			}
			payment, err := s.openPaymentForEntry(ctx, tx, contract, entry)
			if err != nil {
				return err
			}
			payments = append(payments, *payment)
			items = append(items, gateway.LineItem{
				Name:   fmt.Sprintf("%s: %s h on %s", contract.Title, entry.Hours.StringFixed(2), entry.Date.Format("2006-01-02")),
				Amount: payment.Amount,
			})
			total = total.Add(payment.Amount)
			fee = fee.Add(payment.PlatformFee)
		}
		if len(payments) == 0 {
			return fmt.Errorf("%w: no approved unpaid time entries to pay", ErrInvalidInput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := billing.CheckMinimum(total, contract.Currency, s.cfg.MinAmounts); err != nil {
		return nil, billingError(err)
	}
	var split *gateway.Split
	account, err := s.store.Directory.GetPayoutAccount(ctx, contract.ProviderID)
	if err != nil {
		return nil, err
	}
	if account.CanReceive() {
		split = &gateway.Split{Destination: account.AccountID, ApplicationFee: fee}
	}

	ids := make([]string, 0, len(payments))
	paymentIDs := make([]uuid.UUID, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID.String())
		paymentIDs = append(paymentIDs, p.ID)
	}
	base := strings.TrimRight(s.cfg.FrontendURL, "/") + "/contracts/" + contract.ID.String()
	successURL, cancelURL := input.SuccessURL, input.CancelURL
	if successURL == "" {
		successURL = base + "?payment=success"
	}
	if cancelURL == "" {
		cancelURL = base
	}

	metadata := map[string]string{
		gateway.MetaPaymentIDs: strings.Join(ids, ","),
		gateway.MetaContractID: contract.ID.String(),
	}
	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Currency:   contract.Currency,
		Items:      items,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   metadata,
		Split:      split,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	fields := map[string]interface{}{"gateway_session_id": session.ID}
	if session.IntentID != "" {
		fields["gateway_payment_intent_id"] = session.IntentID
	}
	if err := s.markProcessing(ctx, paymentIDs, fields, metadata, session.ID,
		datatypes.JSONMap{"checkout_session": session.ID, "batch_size": len(paymentIDs)}); err != nil {
		return nil, err
	}

	updated, err := s.store.Payments.FindByIDs(ctx, paymentIDs)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		Payments:    updated,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Total:       total,
		Currency:    contract.Currency,
	}, nil
}

func (s *PaymentService) openPaymentForEntry(ctx context.Context, tx *repository.Store, contract *model.Contract, entry *model.TimeEntry) (*model.Payment, error) {
	existing, err := tx.Payments.FindOpenForTimeEntry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	amount, err := billing.TimeEntryAmount(contract, entry)
	if err != nil {
		return nil, billingError(err)
	}
	fee, providerAmount, err := billing.SplitFee(amount, s.cfg.PlatformFeePercent)
	if err != nil {
		return nil, billingError(err)
	}
	entryID := entry.ID
	payment := &model.Payment{
		ID:             uuid.New(),
		ContractID:     contract.ID,
		TimeEntryID:    &entryID,
		PayerID:        contract.ClientID,
		RecipientID:    contract.ProviderID,
		Amount:         amount,
		Currency:       contract.Currency,
		Status:         model.PaymentStatusPending,
		PaymentMethod:  model.PaymentMethodStripe,
		Description:    fmt.Sprintf("%s hours on %s", entry.Hours.StringFixed(2), entry.Date.Format("2006-01-02")),
		FeePercent:     s.cfg.PlatformFeePercent,
		PlatformFee:    fee,
		ProviderAmount: decimal.NewNullDecimal(providerAmount),
	}
	if err := tx.Payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if _, err := tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
		PaymentID:       payment.ID,
		TransactionType: model.TransactionTypeCreated,
		Details: datatypes.JSONMap{
			"amount":       amount.StringFixed(2),
			"platform_fee": fee.StringFixed(2),
			"fee_percent":  s.cfg.PlatformFeePercent.String(),
			"unit":         string(model.BillingUnitTimeEntry),
		},
	}); err != nil {
		return nil, err
	}
	return payment, nil
}

// loadPayable checks that the caller is the payer of a PENDING payment and
// that its amount clears the gateway floor.
func (s *PaymentService) loadPayable(ctx context.Context, principal model.Principal, paymentID uuid.UUID) (*model.Payment, *model.Contract, error) {
	payment, err := s.store.Payments.Get(ctx, paymentID)
	if err != nil {
		return nil, nil, notFound(err, "payment")
	}
	if payment.PayerID != principal.UserID {
		if payment.RecipientID == principal.UserID {
			return nil, nil, fmt.Errorf("%w: only the payer can start the payment", ErrPermissionDenied)
		}
		return nil, nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, nil, fmt.Errorf("%w: payment is %s", ErrPreconditionFailed, payment.Status)
	}
	if err := billing.CheckMinimum(payment.Amount, payment.Currency, s.cfg.MinAmounts); err != nil {
		return nil, nil, billingError(err)
	}
	contract, err := s.store.Contracts.Get(ctx, payment.ContractID)
	if err != nil {
		return nil, nil, notFound(err, "contract")
	}
	return payment, contract, nil
}

// split routes the provider share to their connected account when they have one.
func (s *PaymentService) split(ctx context.Context, payment *model.Payment) (*gateway.Split, error) {
	account, err := s.store.Directory.GetPayoutAccount(ctx, payment.RecipientID)
	if err != nil {
		return nil, err
	}
	if !account.CanReceive() {
		return nil, nil
	}
	return &gateway.Split{Destination: account.AccountID, ApplicationFee: payment.PlatformFee}, nil
}

// markProcessing moves the payments to PROCESSING after the gateway accepted
// them and keeps the metadata the gateway was given. eventID is the gateway
// object id so retries append one audit row.
func (s *PaymentService) markProcessing(
	ctx context.Context,
	ids []uuid.UUID,
	fields map[string]interface{},
	metadata map[string]string,
	eventID string,
	details datatypes.JSONMap,
) error {
	stored := make(datatypes.JSONMap, len(metadata))
	for k, v := range metadata {
		stored[k] = v
	}
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		for _, id := range ids {
			update := make(map[string]interface{}, len(fields)+1)
			for k, v := range fields {
				update[k] = v
			}
			update["metadata"] = stored
			ok, err := tx.Payments.Transition(ctx, id, model.OpenPaymentStatuses, model.PaymentStatusProcessing, update)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: payment %s changed state during gateway setup", ErrConflict, id)
			}
			if _, err := tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
				PaymentID:       id,
				TransactionType: model.TransactionTypeProcessing,
				ExternalEventID: eventID,
				Details:         details,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

type ConfirmResult struct {
	Payment      *model.Payment       `json:"payment"`
	IntentStatus gateway.IntentStatus `json:"intent_status,omitempty"`
}

// Confirm asks the gateway for the current state of the payment and applies
// it through the reconciler, the same path webhooks take.
func (s *PaymentService) Confirm(ctx context.Context, principal model.Principal, paymentID uuid.UUID) (*ConfirmResult, error) {
	payment, err := s.store.Payments.Get(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, "payment")
	}
	if payment.PayerID != principal.UserID && payment.RecipientID != principal.UserID {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	if payment.Status == model.PaymentStatusCompleted {
		return s.confirmResult(ctx, paymentID, gateway.IntentSucceeded)
	}
	if !payment.Status.IsOpen() {
		return nil, fmt.Errorf("%w: payment is %s", ErrPreconditionFailed, payment.Status)
	}

	intentID := payment.GatewayPaymentIntentID
	if intentID == "" && payment.GatewaySessionID != "" {
		session, err := s.gateway.GetSession(ctx, payment.GatewaySessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGateway, err)
		}
		intentID = session.IntentID
	}
	if intentID == "" {
		return nil, fmt.Errorf("%w: payment has not been started with the gateway", ErrPreconditionFailed)
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	metadata := intent.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	ref := gateway.Reference{
		EventID:   intent.ID,
		IntentID:  intent.ID,
		SessionID: payment.GatewaySessionID,
		ChargeID:  intent.ChargeID,
		Metadata:  metadata,
	}

	switch intent.Status {
	case gateway.IntentSucceeded:
		if _, err := s.reconciler.Apply(ctx, gateway.PaymentSucceeded{Reference: ref, TransferID: intent.TransferID}); err != nil {
			return nil, err
		}
	case gateway.IntentCanceled:
		if _, err := s.reconciler.Apply(ctx, gateway.PaymentFailed{Reference: ref, Reason: "payment intent canceled"}); err != nil {
			return nil, err
		}
	case gateway.IntentRequiresPaymentMethod:
		return nil, fmt.Errorf("%w: payment was not completed, a payment method is still required", ErrInvalidInput)
	}
	return s.confirmResult(ctx, paymentID, intent.Status)
}

func (s *PaymentService) confirmResult(ctx context.Context, paymentID uuid.UUID, status gateway.IntentStatus) (*ConfirmResult, error) {
	payment, err := s.store.Payments.GetWithTransactions(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Payment: payment, IntentStatus: status}, nil
}

// HandleWebhook verifies and applies one gateway notification.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*ApplyResult, error) {
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Apply(ctx, event)
}

// ExportLedger renders the contract's payments and audit trail as a workbook.
func (s *PaymentService) ExportLedger(ctx context.Context, principal model.Principal, contractID uuid.UUID) (*FileResult, error) {
	contract, err := loadPartyContract(ctx, s.store, principal.UserID, contractID)
	if err != nil {
		return nil, err
	}
	return s.renderLedger(ctx, contract)
}

// ExportLedgerUnchecked renders the ledger without a party check, for operators.
func (s *PaymentService) ExportLedgerUnchecked(ctx context.Context, contractID uuid.UUID) (*FileResult, error) {
	contract, err := s.store.Contracts.Get(ctx, contractID)
	if err != nil {
		return nil, notFound(err, "contract")
	}
	return s.renderLedger(ctx, contract)
}

func (s *PaymentService) renderLedger(ctx context.Context, contract *model.Contract) (*FileResult, error) {
	payments, err := s.store.Payments.ListForContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	content, err := s.excel.Render(model.LedgerStatement{
		Contract:    *contract,
		Payments:    payments,
		GeneratedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	name := sanitizeFileName(contract.Title)
	if name == "" {
		name = contract.ID.String()
	}
	return &FileResult{
		FileName:    fmt.Sprintf("ledger-%s.xlsx", name),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:     content,
	}, nil
}

func paymentDescription(payment *model.Payment, contract *model.Contract) string {
	if payment.Description != "" {
		return payment.Description
	}
	return "Payment for " + contract.Title
}
