package lastschrift

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a transaction in this status may no longer
// be finalized.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCancelled
}

// Mandate is a standing SEPA direct debit authorization. It is active
// while RevokedAt is null; revocation is terminal.
type Mandate struct {
	ID           int             `db:"id" json:"id"`
	PersonaID    int             `db:"persona_id" json:"persona_id"`
	Donation     decimal.Decimal `db:"donation" json:"donation"`
	IBAN         string          `db:"iban" json:"iban"`
	AccountOwner string          `db:"account_owner" json:"account_owner"`
	GrantedAt    time.Time       `db:"granted_at" json:"granted_at"`
	RevokedAt    *time.Time      `db:"revoked_at" json:"revoked_at,omitempty"`
	Notes        string          `db:"notes" json:"notes"`
}

func (m *Mandate) Active() bool {
	return m.RevokedAt == nil
}

// Transaction is one attempted collection against a mandate. It is
// created open, exported into a pain.008 batch and finalized exactly
// once into a terminal status. Tally holds the amount actually
// collected and stays null until finalization.
type Transaction struct {
	ID          int              `db:"id" json:"id"`
	MandateID   int              `db:"mandate_id" json:"mandate_id"`
	IssuedAt    time.Time        `db:"issued_at" json:"issued_at"`
	PaymentDate time.Time        `db:"payment_date" json:"payment_date"`
	Amount      decimal.Decimal  `db:"amount" json:"amount"`
	Tally       *decimal.Decimal `db:"tally" json:"tally,omitempty"`
	Status      Status           `db:"status" json:"status"`
}

// EndToEndID is the stable SEPA end-to-end reference of the
// transaction. It never changes once the transaction exists, so
// re-exporting a batch reproduces the same references.
func (t *Transaction) EndToEndID() string {
	return endToEndID(t.ID)
}

// debitRow carries everything the pain.008 export needs for one open
// transaction, joined across transaction, mandate and persona.
type debitRow struct {
	TransactionID int             `db:"transaction_id"`
	MandateID     int             `db:"mandate_id"`
	PersonaID     int             `db:"persona_id"`
	Amount        decimal.Decimal `db:"amount"`
	PaymentDate   time.Time       `db:"payment_date"`
	IBAN          string          `db:"iban"`
	AccountOwner  string          `db:"account_owner"`
	GrantedAt     time.Time       `db:"granted_at"`
	GivenName     string          `db:"given_name"`
	FamilyName    string          `db:"family_name"`
	PriorSuccess  bool            `db:"prior_success"`
}

type CreateMandateRequest struct {
	PersonaID    int    `json:"persona_id" binding:"required"`
	Donation     string `json:"donation"`
	IBAN         string `json:"iban" binding:"required"`
	AccountOwner string `json:"account_owner" binding:"required"`
	Notes        string `json:"notes"`
}

type FinalizeRequest struct {
	TransactionIDs []int  `json:"transaction_ids" binding:"required,min=1"`
	Outcome        Status `json:"outcome" binding:"required"`
}
