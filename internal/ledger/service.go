package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kassenwart/internal/api"
	"kassenwart/internal/logger"
	"kassenwart/internal/persona"
)

// MandateSource reports which personas are covered by an active direct
// debit mandate; those are collected via Lastschrift instead of being
// charged off their balance at period close.
type MandateSource interface {
	PersonaIDsWithActiveMandate(ctx context.Context) (map[int]bool, error)
}

// Notifier sends ledger-related mails. Satisfied by the email service.
type Notifier interface {
	SendPaymentReceipt(ctx context.Context, to, name string, amount, newBalance decimal.Decimal) error
}

type BillingReport struct {
	Billed            int                  `json:"billed"`
	TrialExempt       int                  `json:"trial_exempt"`
	LastschriftExempt int                  `json:"lastschrift_exempt"`
	Lapsed            int                  `json:"lapsed"`
	TotalCollected    decimal.Decimal      `json:"total_collected"`
	Errors            []api.BatchItemError `json:"errors,omitempty"`
}

type Service interface {
	BookPayment(ctx context.Context, personaID int, amount decimal.Decimal, transactionDate *time.Time, submittedBy *int, note string) (*FinanceLogEntry, error)
	BillSemester(ctx context.Context, fee decimal.Decimal, submittedBy *int) (*BillingReport, error)
	ListLog(ctx context.Context, filter LogFilter) ([]FinanceLogEntry, error)
}

type service struct {
	repo        Repository
	personaRepo persona.Repository
	mandates    MandateSource
	notifier    Notifier
}

func NewService(repo Repository, personaRepo persona.Repository, mandates MandateSource, notifier Notifier) Service {
	return &service{
		repo:        repo,
		personaRepo: personaRepo,
		mandates:    mandates,
		notifier:    notifier,
	}
}

// BookPayment records an incoming money transfer. Over-payment beyond
// any owed amount simply stays on the balance as credit.
func (s *service) BookPayment(ctx context.Context, personaID int, amount decimal.Decimal, transactionDate *time.Time, submittedBy *int, note string) (*FinanceLogEntry, error) {
	entry, err := s.repo.Credit(ctx, personaID, amount, CodeIncrease, submittedBy, transactionDate, note)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if p, perr := s.personaRepo.FindByID(ctx, personaID); perr == nil {
			s.notifier.SendPaymentReceipt(ctx, p.Email, p.GivenName, amount, entry.NewBalance)
		}
	}

	logger.Info("payment booked",
		"persona_id", personaID,
		"amount", amount.StringFixed(2),
		"new_balance", entry.NewBalance.StringFixed(2),
	)
	return entry, nil
}

// BillSemester charges the period fee to every member without trial or
// Lastschrift coverage. One failing persona does not abort the run; its
// error is collected into the report.
func (s *service) BillSemester(ctx context.Context, fee decimal.Decimal, submittedBy *int) (*BillingReport, error) {
	members, err := s.personaRepo.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	covered := map[int]bool{}
	if s.mandates != nil {
		covered, err = s.mandates.PersonaIDsWithActiveMandate(ctx)
		if err != nil {
			return nil, err
		}
	}

	report := &BillingReport{TotalCollected: decimal.Zero}
	note := fmt.Sprintf("semester fee %s", fee.StringFixed(2))

	for _, m := range members {
		if covered[m.ID] {
			report.LastschriftExempt++
			continue
		}

		outcome, _, err := s.repo.BillPersona(ctx, m.ID, fee, submittedBy, note)
		if err != nil {
			report.Errors = append(report.Errors, api.BatchItemError{ID: m.ID, Reason: err.Error()})
			continue
		}

		switch outcome {
		case OutcomeBilled:
			report.Billed++
			report.TotalCollected = report.TotalCollected.Add(fee)
		case OutcomeTrialExempt:
			report.TrialExempt++
		case OutcomeLapsed:
			report.Lapsed++
		}
	}

	logger.Info("semester billing finished",
		"billed", report.Billed,
		"trial_exempt", report.TrialExempt,
		"lastschrift_exempt", report.LastschriftExempt,
		"lapsed", report.Lapsed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *service) ListLog(ctx context.Context, filter LogFilter) ([]FinanceLogEntry, error) {
	return s.repo.ListLog(ctx, filter)
}
