package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/billing"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

type DocumentRenderer interface {
	Render(doc model.ContractDocument) ([]byte, error)
}

type ContractService struct {
	store           *repository.Store
	notifier        notify.Notifier
	pdf             DocumentRenderer
	defaultCurrency string
	now             func() time.Time
}

func NewContractService(store *repository.Store, notifier notify.Notifier, pdf DocumentRenderer, defaultCurrency string) *ContractService {
	return &ContractService{
		store:           store,
		notifier:        notifier,
		pdf:             pdf,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type CreateContractInput struct {
	Principal        model.Principal
	ProviderID       uuid.UUID
	JobID            *uuid.UUID
	JobApplicationID *uuid.UUID
	Title            string
	Description      string
	Terms            string
	TotalAmount      decimal.Decimal
	Currency         string
	PaymentSchedule  model.PaymentSchedule
	HourlyRate       decimal.NullDecimal
	StartDate        time.Time
	EndDate          *time.Time
}

// ContractView is a contract with its derived projections.
type ContractView struct {
	model.Contract
	IsFullySigned        bool `json:"is_fully_signed"`
	CompletionPercentage int  `json:"completion_percentage"`
}

func (s *ContractService) Create(ctx context.Context, input CreateContractInput) (*model.Contract, error) {
	if !input.Principal.CanHire() {
		return nil, fmt.Errorf("%w: only clients can create contracts", ErrPermissionDenied)
	}
	if input.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidInput)
	}
	if input.Principal.UserID == input.ProviderID {
		return nil, fmt.Errorf("%w: client and provider cannot be the same user", ErrInvalidInput)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: total_amount cannot be negative", ErrInvalidInput)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start_date is required", ErrInvalidInput)
	}
	startDate := dateOnly(input.StartDate)
	var endDate *time.Time
	if input.EndDate != nil {
		end := dateOnly(*input.EndDate)
		if end.Before(startDate) {
			return nil, fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
		}
		endDate = &end
	}

	schedule := input.PaymentSchedule
	if schedule == "" {
		schedule = model.PaymentScheduleFixed
	}
	if err := billing.ValidateSchedule(schedule, input.HourlyRate); err != nil {
		return nil, billingError(err)
	}
	hourlyRate := input.HourlyRate
	if schedule == model.PaymentScheduleFixed {
		hourlyRate = decimal.NullDecimal{}
	}

	currency := normalizeCurrency(input.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	}

	contract := &model.Contract{
		ID:               uuid.New(),
		ClientID:         input.Principal.UserID,
		ProviderID:       input.ProviderID,
		JobID:            input.JobID,
		JobApplicationID: input.JobApplicationID,
		Title:            title,
		Description:      input.Description,
		Terms:            input.Terms,
		TotalAmount:      input.TotalAmount,
		Currency:         currency,
		PaymentSchedule:  schedule,
		HourlyRate:       hourlyRate,
		StartDate:        startDate,
		EndDate:          endDate,
		Status:           model.ContractStatusDraft,
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		provider, err := tx.Directory.GetParty(ctx, input.ProviderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: provider not found", ErrInvalidInput)
			}
			return err
		}
		if provider.UserType != model.UserTypeProvider && provider.UserType != model.UserTypeBoth {
			return fmt.Errorf("%w: user must be a service provider", ErrInvalidInput)
		}

		if err := s.checkJobLink(ctx, tx, contract); err != nil {
			return err
		}

		if err := tx.Contracts.Create(ctx, contract); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: a contract already exists for this job and provider", ErrInvalidInput)
			}
			return err
		}
		for _, signer := range []uuid.UUID{contract.ClientID, contract.ProviderID} {
			if err := tx.Contracts.EnsureSignature(ctx, contract.ID, signer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Message{
		UserID:  contract.ProviderID,
		ActorID: &contract.ClientID,
		Title:   "New contract",
		Message: fmt.Sprintf("You have been offered the contract %q.", contract.Title),
		Link:    contractLink(contract.ID),
	})

	return s.store.Contracts.GetAggregate(ctx, contract.ID)
}

// checkJobLink validates the optional job and application linkage and the
// one-contract-per-pair rules.
func (s *ContractService) checkJobLink(ctx context.Context, tx *repository.Store, contract *model.Contract) error {
	if contract.JobApplicationID != nil {
		app, err := tx.Directory.GetJobApplication(ctx, *contract.JobApplicationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job application not found", ErrInvalidInput)
			}
			return err
		}
		if app.JobClient != contract.ClientID {
			return fmt.Errorf("%w: you can only create contracts from your job applications", ErrInvalidInput)
		}
		if app.ProviderID != contract.ProviderID {
			return fmt.Errorf("%w: provider must match the job application provider", ErrInvalidInput)
		}
		if contract.JobID != nil && *contract.JobID != app.JobID {
			return fmt.Errorf("%w: job does not match the job application", ErrInvalidInput)
		}
		jobID := app.JobID
		contract.JobID = &jobID

		exists, err := tx.Contracts.ExistsForApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: a contract already exists for this application", ErrInvalidInput)
		}
		return nil
	}

	if contract.JobID == nil {
		return nil
	}
	job, err := tx.Directory.GetJob(ctx, *contract.JobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: job not found", ErrInvalidInput)
		}
		return err
	}
	if job.ClientID != contract.ClientID {
		return fmt.Errorf("%w: you can only create contracts for your own jobs", ErrInvalidInput)
	}
	exists, err := tx.Contracts.ExistsForJobProvider(ctx, job.ID, contract.ProviderID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: a contract already exists for this job and provider", ErrInvalidInput)
	}
	return nil
}

type ListContractsInput struct {
	Principal  model.Principal
	Status     *model.ContractStatus
	ClientID   *uuid.UUID
	ProviderID *uuid.UUID
	Mine       bool
}

func (s *ContractService) List(ctx context.Context, input ListContractsInput) ([]model.Contract, error) {
	filter := repository.ContractFilter{
		PartyID:    input.Principal.UserID,
		Status:     input.Status,
		ClientID:   input.ClientID,
		ProviderID: input.ProviderID,
	}
	if input.Principal.CanHire() && input.Mine {
		filter.OnlyAsClient = true
	}
	return s.store.Contracts.List(ctx, filter)
}

func (s *ContractService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*ContractView, error) {
	contract, err := s.store.Contracts.GetAggregate(ctx, id)
	if err != nil {
		return nil, notFound(err, "contract")
	}
	if !contract.IsParty(principal.UserID) {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	return s.project(ctx, contract)
}

func (s *ContractService) project(ctx context.Context, contract *model.Contract) (*ContractView, error) {
	payments, err := s.store.Payments.List(ctx, repository.PaymentFilter{ContractID: &contract.ID})
	if err != nil {
		return nil, err
	}
	return &ContractView{
		Contract:             *contract,
		IsFullySigned:        billing.IsFullySigned(contract, contract.Signatures),
		CompletionPercentage: billing.CompletionPercentage(contract, payments, contract.TimeEntries),
	}, nil
}

type UpdateContractInput struct {
	Principal   model.Principal
	ContractID  uuid.UUID
	Title       *string
	Description *string
	Terms       *string
	TotalAmount *decimal.Decimal
	Currency    *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// Update changes descriptive fields while the contract is still being negotiated.
func (s *ContractService) Update(ctx context.Context, input UpdateContractInput) (*model.Contract, error) {
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		contract, err := tx.Contracts.Lock(ctx, input.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(input.Principal.UserID) {
			return fmt.Errorf("%w: contract", ErrNotFound)
		}
		if contract.ClientID != input.Principal.UserID {
			return fmt.Errorf("%w: only the client can edit the contract", ErrPermissionDenied)
		}
		if !contract.Status.IsSignable() {
			return fmt.Errorf("%w: contract can only be edited before it is active", ErrPreconditionFailed)
		}

		fields := map[string]interface{}{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
			}
			fields["title"] = title
		}
		if input.Description != nil {
			fields["description"] = *input.Description
		}
		if input.Terms != nil {
			fields["terms"] = *input.Terms
		}
		if input.Currency != nil {
			currency := normalizeCurrency(*input.Currency)
			if len(currency) != 3 {
				return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
			}
			fields["currency"] = currency
		}
		if input.TotalAmount != nil {
			if input.TotalAmount.IsNegative() {
				return fmt.Errorf("%w: total_amount cannot be negative", ErrInvalidInput)
			}
			milestones, err := tx.Units.ListMilestones(ctx, contract.ID)
			if err != nil {
				return err
			}
			probe := *contract
			probe.TotalAmount = *input.TotalAmount
			if err := billing.CheckMilestoneBudget(&probe, milestones, decimal.Zero); err != nil {
				return billingError(err)
			}
			fields["total_amount"] = *input.TotalAmount
		}

		start := contract.StartDate
		if input.StartDate != nil {
			start = dateOnly(*input.StartDate)
			fields["start_date"] = start
		}
		end := contract.EndDate
		if input.EndDate != nil {
			e := dateOnly(*input.EndDate)
			end = &e
			fields["end_date"] = e
		}
		if end != nil && end.Before(dateOnly(start)) {
			return fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
		}

		if len(fields) == 0 {
			return nil
		}
		return tx.Contracts.Update(ctx, contract.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.store.Contracts.GetAggregate(ctx, input.ContractID)
}

// UpdateStatus applies an explicit status change requested by a party.
func (s *ContractService) UpdateStatus(ctx context.Context, principal model.Principal, id uuid.UUID, status model.ContractStatus) (*model.Contract, error) {
	now := s.now()
	var activated bool
	var contract *model.Contract

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		contract, err = tx.Contracts.Lock(ctx, id)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(principal.UserID) {
			return fmt.Errorf("%w: contract", ErrNotFound)
		}
		if contract.Status == status {
			return nil
		}
		if contract.Status.IsTerminal() {
			return fmt.Errorf("%w: contract is %s and can no longer change", ErrPreconditionFailed, contract.Status)
		}

		switch status {
		case model.ContractStatusActive:
			sigs, err := tx.Contracts.ListSignatures(ctx, contract.ID)
			if err != nil {
				return err
			}
			if !billing.IsFullySigned(contract, sigs) {
				return fmt.Errorf("%w: contract must be fully signed before it can be activated", ErrPreconditionFailed)
			}
			activated, err = s.activate(ctx, tx, contract, now)
			return err

		case model.ContractStatusCompleted, model.ContractStatusTerminated:
			if contract.Status != model.ContractStatusActive {
				return fmt.Errorf("%w: only active contracts can be ended", ErrPreconditionFailed)
			}
			ok, err := tx.Contracts.TransitionStatus(ctx, contract.ID,
				[]model.ContractStatus{model.ContractStatusActive}, status,
				map[string]interface{}{"completed_at": now})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: contract status changed concurrently", ErrConflict)
			}
			return nil

		case model.ContractStatusCancelled:
			ok, err := tx.Contracts.TransitionStatus(ctx, contract.ID,
				[]model.ContractStatus{model.ContractStatusDraft, model.ContractStatusPendingSignatures},
				status, nil)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: only contracts awaiting signatures can be cancelled", ErrPreconditionFailed)
			}
			return nil

		default:
			return fmt.Errorf("%w: status %s cannot be set directly", ErrInvalidInput, status)
		}
	})
	if err != nil {
		return nil, err
	}

	if activated {
		s.notifyActivated(ctx, contract)
	}
	return s.store.Contracts.GetAggregate(ctx, id)
}

// activate flips a fully signed contract to ACTIVE and starts the linked job.
func (s *ContractService) activate(ctx context.Context, tx *repository.Store, contract *model.Contract, now time.Time) (bool, error) {
	fields := map[string]interface{}{}
	if contract.SignedAt == nil {
		fields["signed_at"] = now
	}
	ok, err := tx.Contracts.TransitionStatus(ctx, contract.ID,
		[]model.ContractStatus{model.ContractStatusDraft, model.ContractStatusPendingSignatures},
		model.ContractStatusActive, fields)
	if err != nil || !ok {
		return false, err
	}
	if contract.JobID != nil {
		if err := tx.Directory.MarkJobInProgress(ctx, *contract.JobID); err != nil {
			return false, err
		}
	}
	return true, nil
}

type SignInput struct {
	Principal     model.Principal
	ContractID    uuid.UUID
	SignatureData string
	SignatureType model.SignatureType
	IPAddress     string
	UserAgent     string
}

type SignResult struct {
	Contract  *model.Contract
	Signature *model.ContractSignature
	Activated bool
}

// Sign records the caller's consent. Whether the contract becomes ACTIVE is
// decided from the signature rows read inside the same transaction.
func (s *ContractService) Sign(ctx context.Context, input SignInput) (*SignResult, error) {
	if strings.TrimSpace(input.SignatureData) == "" {
		return nil, fmt.Errorf("%w: signature_data is required", ErrInvalidInput)
	}
	sigType := input.SignatureType
	if sigType == "" {
		sigType = model.SignatureTypeDigital
	}
	switch sigType {
	case model.SignatureTypeDigital, model.SignatureTypeImage, model.SignatureTypeText:
	default:
		return nil, fmt.Errorf("%w: unknown signature_type %q", ErrInvalidInput, sigType)
	}

	now := s.now()
	signer := input.Principal.UserID
	var contract *model.Contract
	var activated bool

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		contract, err = tx.Contracts.Lock(ctx, input.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(signer) {
			return fmt.Errorf("%w: you are not authorized to sign this contract", ErrPermissionDenied)
		}

		if err := tx.Contracts.EnsureSignature(ctx, contract.ID, signer); err != nil {
			return err
		}
		existing, err := tx.Contracts.GetSignature(ctx, contract.ID, signer)
		if err != nil {
			return err
		}
		if existing.IsSigned {
			return fmt.Errorf("%w: you have already signed this contract", ErrConflict)
		}
		if !contract.Status.IsSignable() {
			return fmt.Errorf("%w: contract is %s and cannot be signed", ErrPreconditionFailed, contract.Status)
		}

		ok, err := tx.Contracts.MarkSigned(ctx, contract.ID, signer, repository.SignaturePayload{
			Data:      input.SignatureData,
			Type:      sigType,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			SignedAt:  now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: you have already signed this contract", ErrConflict)
		}

		sigs, err := tx.Contracts.ListSignatures(ctx, contract.ID)
		if err != nil {
			return err
		}
		if billing.IsFullySigned(contract, sigs) {
			activated, err = s.activate(ctx, tx, contract, now)
			return err
		}
		_, err = tx.Contracts.TransitionStatus(ctx, contract.ID,
			[]model.ContractStatus{model.ContractStatusDraft},
			model.ContractStatusPendingSignatures, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	other := contract.ProviderID
	if signer == contract.ProviderID {
		other = contract.ClientID
	}
	s.notifier.Notify(ctx, notify.Message{
		UserID:  other,
		ActorID: &signer,
		Title:   "Contract signed",
		Message: fmt.Sprintf("The other party signed %q.", contract.Title),
		Link:    contractLink(contract.ID),
	})
	if activated {
		s.notifyActivated(ctx, contract)
	}

	signature, err := s.store.Contracts.GetSignature(ctx, contract.ID, signer)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Contracts.GetAggregate(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	return &SignResult{Contract: updated, Signature: signature, Activated: activated}, nil
}

func (s *ContractService) Signatures(ctx context.Context, principal model.Principal, contractID uuid.UUID) ([]model.ContractSignature, error) {
	if _, err := loadPartyContract(ctx, s.store, principal.UserID, contractID); err != nil {
		return nil, err
	}
	return s.store.Contracts.ListSignatures(ctx, contractID)
}

// Delete removes a draft or cancelled contract together with its children.
func (s *ContractService) Delete(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		contract, err := tx.Contracts.Lock(ctx, id)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(principal.UserID) {
			return fmt.Errorf("%w: contract", ErrNotFound)
		}
		if contract.ClientID != principal.UserID {
			return fmt.Errorf("%w: you can only delete your own contracts", ErrPermissionDenied)
		}
		if contract.Status != model.ContractStatusDraft && contract.Status != model.ContractStatusCancelled {
			return fmt.Errorf("%w: only draft or cancelled contracts can be deleted", ErrPreconditionFailed)
		}
		return tx.Contracts.Delete(ctx, contract.ID)
	})
}

func (s *ContractService) ListMilestones(ctx context.Context, principal model.Principal, contractID uuid.UUID) ([]model.ContractMilestone, error) {
	if _, err := loadPartyContract(ctx, s.store, principal.UserID, contractID); err != nil {
		return nil, err
	}
	return s.store.Units.ListMilestones(ctx, contractID)
}

type CreateMilestoneInput struct {
	Principal   model.Principal
	ContractID  uuid.UUID
	Title       string
	Description string
	Amount      decimal.Decimal
	DueDate     *time.Time
	Order       int
}

func (s *ContractService) CreateMilestone(ctx context.Context, input CreateMilestoneInput) (*model.ContractMilestone, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}

	milestone := &model.ContractMilestone{
		ID:          uuid.New(),
		ContractID:  input.ContractID,
		Title:       title,
		Description: input.Description,
		Amount:      input.Amount,
		Status:      model.MilestoneStatusPending,
		Order:       input.Order,
	}
	if input.DueDate != nil {
		due := dateOnly(*input.DueDate)
		milestone.DueDate = &due
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		contract, err := tx.Contracts.Lock(ctx, input.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(input.Principal.UserID) {
			return fmt.Errorf("%w: you do not have permission to add milestones to this contract", ErrPermissionDenied)
		}
		if contract.Status.IsTerminal() {
			return fmt.Errorf("%w: contract is %s", ErrPreconditionFailed, contract.Status)
		}
		existing, err := tx.Units.ListMilestones(ctx, contract.ID)
		if err != nil {
			return err
		}
		if err := billing.CheckMilestoneBudget(contract, existing, input.Amount); err != nil {
			return billingError(err)
		}
		return tx.Units.CreateMilestone(ctx, milestone)
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// UpdateMilestoneStatus moves a milestone forward. Completing the last open
// milestone completes the contract.
func (s *ContractService) UpdateMilestoneStatus(ctx context.Context, principal model.Principal, milestoneID uuid.UUID, status model.MilestoneStatus) (*model.ContractMilestone, error) {
	var from []model.MilestoneStatus
	switch status {
	case model.MilestoneStatusInProgress:
		from = []model.MilestoneStatus{model.MilestoneStatusPending}
	case model.MilestoneStatusCompleted, model.MilestoneStatusCancelled:
		from = []model.MilestoneStatus{model.MilestoneStatusPending, model.MilestoneStatusInProgress}
	default:
		return nil, fmt.Errorf("%w: status %s cannot be set", ErrInvalidInput, status)
	}

	now := s.now()
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		milestone, err := tx.Units.GetMilestone(ctx, milestoneID)
		if err != nil {
			return notFound(err, "milestone")
		}
		contract, err := tx.Contracts.Lock(ctx, milestone.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(principal.UserID) {
			return fmt.Errorf("%w: you do not have permission to update this milestone", ErrPermissionDenied)
		}
		if milestone.Status == status {
			return nil
		}

		var completedAt *time.Time
		if status == model.MilestoneStatusCompleted {
			completedAt = &now
		}
		ok, err := tx.Units.TransitionMilestone(ctx, milestone.ID, from, status, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: milestone is %s", ErrPreconditionFailed, milestone.Status)
		}
		if status == model.MilestoneStatusCompleted {
			_, err = completeContractIfMilestonesDone(ctx, tx, contract.ID, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.Units.GetMilestone(ctx, milestoneID)
}

// Document renders the printable contract for one of its parties.
func (s *ContractService) Document(ctx context.Context, principal model.Principal, id uuid.UUID) (*FileResult, error) {
	view, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	client := s.partyOrPlaceholder(ctx, view.ClientID)
	provider := s.partyOrPlaceholder(ctx, view.ProviderID)

	content, err := s.pdf.Render(model.ContractDocument{
		Contract:             view.Contract,
		Client:               client,
		Provider:             provider,
		IsFullySigned:        view.IsFullySigned,
		CompletionPercentage: view.CompletionPercentage,
		GeneratedAt:          s.now(),
	})
	if err != nil {
		return nil, err
	}

	name := sanitizeFileName(view.Title)
	if name == "" {
		name = view.ID.String()
	}
	return &FileResult{
		FileName:    fmt.Sprintf("contract-%s.pdf", name),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func (s *ContractService) partyOrPlaceholder(ctx context.Context, id uuid.UUID) model.Party {
	party, err := s.store.Directory.GetParty(ctx, id)
	if err != nil {
		return model.Party{ID: id, Email: id.String()}
	}
	return *party
}

func (s *ContractService) notifyActivated(ctx context.Context, contract *model.Contract) {
	for _, party := range []uuid.UUID{contract.ClientID, contract.ProviderID} {
		s.notifier.Notify(ctx, notify.Message{
			UserID:  party,
			Title:   "Contract active",
			Message: fmt.Sprintf("Both parties signed %q. The contract is now active.", contract.Title),
			Link:    contractLink(contract.ID),
		})
	}
}

func contractLink(id uuid.UUID) string {
	return "/contracts/" + id.String()
}
