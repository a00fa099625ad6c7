package model

import "github.com/google/uuid"

// Party is a user record owned by the identity service.
type Party struct {
	ID       uuid.UUID
	Email    string
	FullName string
	UserType UserType
}

func (p Party) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

type JobStatus string

const (
	JobStatusOpen       JobStatus = "OPEN"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
)

// Job is the read-side view of a job posting owned by the job service.
type Job struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Status   JobStatus
}

type JobApplication struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	ProviderID uuid.UUID
	JobClient  uuid.UUID
}

// PayoutAccount is the provider's connected gateway account, if any.
type PayoutAccount struct {
	UserID    uuid.UUID
	AccountID string
	Enabled   bool
}

func (a *PayoutAccount) CanReceive() bool {
	return a != nil && a.AccountID != "" && a.Enabled
}
