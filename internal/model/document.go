package model

import "time"

// ContractDocument is everything the printable contract needs.
type ContractDocument struct {
	Contract             Contract
	Client               Party
	Provider             Party
	IsFullySigned        bool
	CompletionPercentage int
	GeneratedAt          time.Time
}

// LedgerStatement is a contract's payments with their audit trails.
type LedgerStatement struct {
	Contract    Contract
	Payments    []Payment
	GeneratedAt time.Time
}
