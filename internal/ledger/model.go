package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type LogCode string

const (
	// CodeIncrease records an incoming payment.
	CodeIncrease LogCode = "increase"
	// CodeDeduct records a period-close membership fee charge.
	CodeDeduct LogCode = "deduct"
	// CodeLastschrift records a successful direct debit collection.
	CodeLastschrift LogCode = "lastschrift_success"
	// CodeMembershipLapsed records a membership ending for lack of
	// balance. Delta is zero; the charge was blocked, not applied.
	CodeMembershipLapsed LogCode = "membership_lapsed"
)

func (c LogCode) Valid() bool {
	switch c {
	case CodeIncrease, CodeDeduct, CodeLastschrift, CodeMembershipLapsed:
		return true
	}
	return false
}

// TotalNotComputed is the sentinel stored in Total and MemberTotal when
// the aggregate balance was not computed for an entry.
var TotalNotComputed = decimal.NewFromInt(-1)

// FinanceLogEntry is the append-only audit trail of every
// balance-affecting event. Entries are never mutated or deleted;
// NewBalance always matches the persona's balance after the entry.
type FinanceLogEntry struct {
	ID              int             `db:"id" json:"id"`
	Ctime           time.Time       `db:"ctime" json:"ctime"`
	Code            LogCode         `db:"code" json:"code"`
	SubmittedBy     *int            `db:"submitted_by" json:"submitted_by,omitempty"`
	PersonaID       int             `db:"persona_id" json:"persona_id"`
	Delta           decimal.Decimal `db:"delta" json:"delta"`
	NewBalance      decimal.Decimal `db:"new_balance" json:"new_balance"`
	TransactionDate *time.Time      `db:"transaction_date" json:"transaction_date,omitempty"`
	ChangeNote      string          `db:"change_note" json:"change_note"`
	Members         int             `db:"members" json:"members"`
	Total           decimal.Decimal `db:"total" json:"total"`
	MemberTotal     decimal.Decimal `db:"member_total" json:"member_total"`
}

// LogFilter narrows ListLog output. Zero values mean "no filter".
type LogFilter struct {
	Code      LogCode
	PersonaID int
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type BillOutcome string

const (
	OutcomeBilled      BillOutcome = "billed"
	OutcomeTrialExempt BillOutcome = "trial_exempt"
	OutcomeLapsed      BillOutcome = "lapsed"
	OutcomeNotMember   BillOutcome = "not_member"
)
