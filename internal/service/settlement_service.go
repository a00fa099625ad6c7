package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

// Reconciler applies gateway confirmations to the payment ledger. Every
// transition is conditional on the current status and deduplicated by the
// gateway event id, so redelivered or reordered events are harmless.
type Reconciler struct {
	store    *repository.Store
	notifier notify.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewReconciler(store *repository.Store, notifier notify.Notifier, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ApplyResult struct {
	// Resolved are the payments the event referred to.
	Resolved []uuid.UUID
	// Applied are the payments whose state changed.
	Applied []uuid.UUID
	// Unresolved are metadata references that matched no payment.
	Unresolved []string
}

type completion struct {
	payment *model.Payment
	amount  string
}

// Apply resolves the event to payments and applies it to each of them inside
// one transaction. References that resolve to nothing are logged and dropped.
func (r *Reconciler) Apply(ctx context.Context, event gateway.Event) (*ApplyResult, error) {
	ref := event.Ref()
	log := r.log.With().Str("event_id", ref.EventID).Str("event_kind", eventKind(event)).Logger()

	ids, unresolved, err := r.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	result := &ApplyResult{Resolved: ids, Unresolved: unresolved}
	for _, raw := range unresolved {
		log.Warn().Str("payment_ref", raw).Msg("gateway event references unknown payment")
	}
	if len(ids) == 0 {
		log.Warn().
			Str("intent_id", ref.IntentID).
			Str("session_id", ref.SessionID).
			Str("charge_id", ref.ChargeID).
			Msg("gateway event resolved to no payment, dropped")
		return result, nil
	}

	now := r.now()
	var completed []completion

	err = r.store.Transaction(ctx, func(tx *repository.Store) error {
		for _, id := range ids {
			payment, err := tx.Payments.Get(ctx, id)
			if err != nil {
				return err
			}
			contract, err := tx.Contracts.Lock(ctx, payment.ContractID)
			if err != nil {
				return err
			}
			// Re-read under the contract lock.
			if payment, err = tx.Payments.Get(ctx, id); err != nil {
				return err
			}

			var applied, settled bool
			switch e := event.(type) {
			case gateway.CheckoutCompleted:
				if !e.Paid {
					err = r.attachIntent(ctx, tx, payment, e.Reference)
					break
				}
				applied, err = r.complete(ctx, tx, contract, payment, e.Reference, "", now, log)
				settled = applied
			case gateway.PaymentSucceeded:
				applied, err = r.complete(ctx, tx, contract, payment, e.Reference, e.TransferID, now, log)
				settled = applied
			case gateway.PaymentFailed:
				applied, err = r.fail(ctx, tx, payment, e, now)
			case gateway.ChargeRefunded:
				applied, err = r.refund(ctx, tx, payment, e, log)
			default:
				return fmt.Errorf("unhandled gateway event %T", event)
			}
			if err != nil {
				return err
			}
			if applied {
				result.Applied = append(result.Applied, id)
			}
			if settled {
				completed = append(completed, completion{payment: payment, amount: payment.Amount.StringFixed(2)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range completed {
		r.notifier.Notify(ctx, notify.Message{
			UserID:  c.payment.RecipientID,
			ActorID: &c.payment.PayerID,
			Title:   "Payment received",
			Message: fmt.Sprintf("A payment of %s %s was completed.", c.amount, c.payment.Currency),
			Link:    "/payments/" + c.payment.ID.String(),
		})
	}
	if len(result.Applied) > 0 {
		log.Info().Int("payments", len(result.Applied)).Msg("gateway event applied")
	}
	return result, nil
}

// resolve finds the payments an event refers to by stored gateway ids and by
// the payment ids embedded in metadata. Charge ids are only consulted when
// nothing else matches.
func (r *Reconciler) resolve(ctx context.Context, ref gateway.Reference) ([]uuid.UUID, []string, error) {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	add := func(payments []model.Payment) {
		for _, p := range payments {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}
	}

	if ref.IntentID != "" {
		payments, err := r.store.Payments.FindByIntent(ctx, ref.IntentID)
		if err != nil {
			return nil, nil, err
		}
		add(payments)
	}
	if ref.SessionID != "" {
		payments, err := r.store.Payments.FindBySession(ctx, ref.SessionID)
		if err != nil {
			return nil, nil, err
		}
		add(payments)
	}

	metaIDs, unresolved := ref.PaymentIDs()
	if len(metaIDs) > 0 {
		payments, err := r.store.Payments.FindByIDs(ctx, metaIDs)
		if err != nil {
			return nil, nil, err
		}
		found := make(map[uuid.UUID]struct{}, len(payments))
		for _, p := range payments {
			found[p.ID] = struct{}{}
		}
		for _, id := range metaIDs {
			if _, ok := found[id]; !ok {
				unresolved = append(unresolved, id.String())
			}
		}
		add(payments)
	}

	if len(ids) == 0 && ref.ChargeID != "" {
		payments, err := r.store.Payments.FindByCharge(ctx, ref.ChargeID)
		if err != nil {
			return nil, nil, err
		}
		add(payments)
	}
	return ids, unresolved, nil
}

// attachIntent records the intent of a checkout that is not paid yet.
func (r *Reconciler) attachIntent(ctx context.Context, tx *repository.Store, payment *model.Payment, ref gateway.Reference) error {
	fields := map[string]interface{}{}
	if ref.IntentID != "" && payment.GatewayPaymentIntentID == "" {
		fields["gateway_payment_intent_id"] = ref.IntentID
	}
	if ref.SessionID != "" && payment.GatewaySessionID == "" {
		fields["gateway_session_id"] = ref.SessionID
	}
	if len(fields) == 0 {
		return nil
	}
	return tx.Payments.UpdateGatewayRefs(ctx, payment.ID, fields)
}

func (r *Reconciler) complete(
	ctx context.Context,
	tx *repository.Store,
	contract *model.Contract,
	payment *model.Payment,
	ref gateway.Reference,
	transferID string,
	now time.Time,
	log zerolog.Logger,
) (bool, error) {
	if ref.EventID != "" {
		seen, err := tx.Payments.HasTransaction(ctx, payment.ID, model.TransactionTypeCompleted, ref.EventID)
		if err != nil || seen {
			return false, err
		}
	}
	if !payment.Status.IsOpen() {
		if payment.Status != model.PaymentStatusCompleted {
			log.Warn().Str("payment_id", payment.ID.String()).Str("status", string(payment.Status)).
				Msg("success confirmation for a closed payment ignored")
		}
		return false, nil
	}

	unit, unitID := unitOf(payment)
	taken, err := unitSettled(ctx, tx, contract, unit, unitID, payment.ID)
	if err != nil {
		return false, err
	}
	if taken {
		log.Error().Str("payment_id", payment.ID.String()).Str("unit", string(unit)).
			Msg("billing unit already settled by another payment, confirmation not applied")
		return false, nil
	}

	providerAmount := payment.Amount.Sub(payment.PlatformFee)
	if payment.ProviderAmount.Valid {
		providerAmount = payment.ProviderAmount.Decimal
	}
	fields := map[string]interface{}{
		"completed_at":    now,
		"provider_amount": providerAmount,
	}
	details := datatypes.JSONMap{}
	if ref.IntentID != "" {
		fields["gateway_payment_intent_id"] = ref.IntentID
		details["payment_intent"] = ref.IntentID
	}
	if ref.SessionID != "" {
		fields["gateway_session_id"] = ref.SessionID
		details["checkout_session"] = ref.SessionID
	}
	if ref.ChargeID != "" {
		fields["gateway_charge_id"] = ref.ChargeID
		details["charge_id"] = ref.ChargeID
	}
	if transferID != "" {
		fields["gateway_transfer_id"] = transferID
		details["transfer_id"] = transferID
	}

	ok, err := tx.Payments.Transition(ctx, payment.ID, model.OpenPaymentStatuses, model.PaymentStatusCompleted, fields)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
		PaymentID:       payment.ID,
		TransactionType: model.TransactionTypeCompleted,
		ExternalEventID: ref.EventID,
		Details:         details,
	}); err != nil {
		return false, err
	}

	switch unit {
	case model.BillingUnitTimeEntry:
		paid, err := tx.Units.TransitionTimeEntry(ctx, *unitID,
			[]model.TimeEntryStatus{model.TimeEntryStatusApproved}, model.TimeEntryStatusPaid, nil)
		if err != nil {
			return false, err
		}
		if !paid {
			log.Warn().Str("time_entry_id", unitID.String()).Msg("settled time entry was not in APPROVED state")
		}
	case model.BillingUnitMilestone:
		if _, err := tx.Units.TransitionMilestone(ctx, *unitID,
			[]model.MilestoneStatus{model.MilestoneStatusPending, model.MilestoneStatusInProgress},
			model.MilestoneStatusCompleted, &now); err != nil {
			return false, err
		}
		if _, err := completeContractIfMilestonesDone(ctx, tx, payment.ContractID, now); err != nil {
			return false, err
		}
	}

	if err := tx.Directory.CreditEarnings(ctx, payment.RecipientID, providerAmount); err != nil {
		return false, err
	}
	payment.Status = model.PaymentStatusCompleted
	return true, nil
}

func (r *Reconciler) fail(ctx context.Context, tx *repository.Store, payment *model.Payment, e gateway.PaymentFailed, now time.Time) (bool, error) {
	ok, err := tx.Payments.Transition(ctx, payment.ID, model.OpenPaymentStatuses, model.PaymentStatusFailed,
		map[string]interface{}{"failed_at": now})
	if err != nil || !ok {
		return false, err
	}
	details := datatypes.JSONMap{}
	if e.Reason != "" {
		details["error"] = e.Reason
	}
	if e.IntentID != "" {
		details["payment_intent"] = e.IntentID
	}
	if _, err := tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
		PaymentID:       payment.ID,
		TransactionType: model.TransactionTypeFailed,
		ExternalEventID: e.EventID,
		Details:         details,
	}); err != nil {
		return false, err
	}
	payment.Status = model.PaymentStatusFailed
	return true, nil
}

// refund marks a completed payment REFUNDED. The settled billing unit keeps
// its status; the audit row records which unit was affected.
func (r *Reconciler) refund(ctx context.Context, tx *repository.Store, payment *model.Payment, e gateway.ChargeRefunded, log zerolog.Logger) (bool, error) {
	fields := map[string]interface{}{}
	if e.RefundID != "" {
		fields["gateway_refund_id"] = e.RefundID
	}
	ok, err := tx.Payments.Transition(ctx, payment.ID,
		[]model.PaymentStatus{model.PaymentStatusCompleted}, model.PaymentStatusRefunded, fields)
	if err != nil || !ok {
		return false, err
	}

	unit, unitID := unitOf(payment)
	details := datatypes.JSONMap{"unit": string(unit)}
	if unitID != nil {
		details["unit_id"] = unitID.String()
	}
	if e.RefundID != "" {
		details["refund_id"] = e.RefundID
	}
	if _, err := tx.Payments.AppendTransaction(ctx, &model.PaymentTransaction{
		PaymentID:       payment.ID,
		TransactionType: model.TransactionTypeRefunded,
		ExternalEventID: e.EventID,
		Details:         details,
	}); err != nil {
		return false, err
	}
	if unit != model.BillingUnitContract {
		log.Warn().Str("payment_id", payment.ID.String()).Str("unit", string(unit)).
			Msg("refunded payment leaves its billing unit settled")
	}
	payment.Status = model.PaymentStatusRefunded
	return true, nil
}

func unitOf(p *model.Payment) (model.BillingUnit, *uuid.UUID) {
	switch unit := p.Unit(); unit {
	case model.BillingUnitTimeEntry:
		return unit, p.TimeEntryID
	case model.BillingUnitMilestone:
		return unit, p.MilestoneID
	default:
		return unit, nil
	}
}

func eventKind(event gateway.Event) string {
	switch event.(type) {
	case gateway.CheckoutCompleted:
		return "checkout_completed"
	case gateway.PaymentSucceeded:
		return "payment_succeeded"
	case gateway.PaymentFailed:
		return "payment_failed"
	case gateway.ChargeRefunded:
		return "charge_refunded"
	}
	return fmt.Sprintf("%T", event)
}
