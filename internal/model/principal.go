package model

import "github.com/google/uuid"

type UserType string

const (
	UserTypeClient   UserType = "CLIENT"
	UserTypeProvider UserType = "PROVIDER"
	UserTypeBoth     UserType = "BOTH"
)

func ParseUserType(raw string) (UserType, bool) {
	switch t := UserType(raw); t {
	case UserTypeClient, UserTypeProvider, UserTypeBoth:
		return t, true
	}
	return "", false
}

// Principal is the authenticated caller as resolved by the identity service.
type Principal struct {
	UserID   uuid.UUID
	UserType UserType
}

func (p Principal) CanHire() bool {
	return p.UserType == UserTypeClient || p.UserType == UserTypeBoth
}

func (p Principal) CanProvide() bool {
	return p.UserType == UserTypeProvider || p.UserType == UserTypeBoth
}
