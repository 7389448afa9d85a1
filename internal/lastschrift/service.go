package lastschrift

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kassenwart/internal/api"
	"kassenwart/internal/config"
	"kassenwart/internal/logger"
	"kassenwart/internal/metrics"
	"kassenwart/internal/persona"
)

var (
	ErrInvalidDonation = errors.New("donation must be non-negative with at most two decimal places")
	ErrInvalidOutcome  = errors.New("outcome must be success, failure or cancelled")
	ErrNothingToExport = errors.New("no open transactions to export")
)

// Notifier sends mandate-related mails. Satisfied by the email service.
type Notifier interface {
	SendDebitPrenotification(ctx context.Context, to, name string, amount decimal.Decimal, paymentDate time.Time) error
	SendMandateRevoked(ctx context.Context, to, name string) error
}

type GenerationReport struct {
	Created      int                  `json:"created"`
	Transactions []Transaction        `json:"transactions"`
	Errors       []api.BatchItemError `json:"errors,omitempty"`
}

type FinalizeReport struct {
	Finalized int                  `json:"finalized"`
	Errors    []api.BatchItemError `json:"errors,omitempty"`
}

type Service interface {
	CreateMandate(ctx context.Context, personaID int, donation decimal.Decimal, iban, accountOwner, notes string) (*Mandate, error)
	RevokeMandate(ctx context.Context, mandateID int) (*Mandate, error)
	ListMandates(ctx context.Context, activeOnly bool) ([]Mandate, error)
	GenerateTransactions(ctx context.Context) (*GenerationReport, error)
	ExportPain(ctx context.Context, mandateID int) ([]byte, error)
	FinalizeTransactions(ctx context.Context, ids []int, outcome Status, submittedBy *int) (*FinalizeReport, error)
}

type service struct {
	repo        Repository
	personaRepo persona.Repository
	notifier    Notifier
	cfg         *config.Config
}

func NewService(repo Repository, personaRepo persona.Repository, notifier Notifier, cfg *config.Config) Service {
	return &service{
		repo:        repo,
		personaRepo: personaRepo,
		notifier:    notifier,
		cfg:         cfg,
	}
}

func (s *service) CreateMandate(ctx context.Context, personaID int, donation decimal.Decimal, iban, accountOwner, notes string) (*Mandate, error) {
	if donation.IsNegative() || donation.Exponent() < -2 {
		return nil, ErrInvalidDonation
	}

	iban = NormalizeIBAN(iban)
	if err := ValidateIBAN(iban); err != nil {
		return nil, err
	}

	if _, err := s.personaRepo.FindByID(ctx, personaID); err != nil {
		return nil, err
	}

	m, err := s.repo.CreateMandate(ctx, personaID, donation, iban, accountOwner, notes)
	if err != nil {
		return nil, err
	}

	metrics.MandatesActive.Inc()
	logger.Info("mandate created", "mandate_id", m.ID, "persona_id", personaID)
	return m, nil
}

func (s *service) RevokeMandate(ctx context.Context, mandateID int) (*Mandate, error) {
	m, err := s.repo.RevokeMandate(ctx, mandateID)
	if err != nil {
		return nil, err
	}

	metrics.MandatesActive.Dec()
	if s.notifier != nil {
		if p, perr := s.personaRepo.FindByID(ctx, m.PersonaID); perr == nil {
			s.notifier.SendMandateRevoked(ctx, p.Email, p.GivenName)
		}
	}

	logger.Info("mandate revoked", "mandate_id", m.ID)
	return m, nil
}

func (s *service) ListMandates(ctx context.Context, activeOnly bool) ([]Mandate, error) {
	return s.repo.ListMandates(ctx, activeOnly)
}

// GenerateTransactions creates one open transaction per debitable
// mandate, charging the annual fee plus the pledged donation. Mandates
// that already carry an open transaction are not selected, so a second
// run without intervening finalization creates nothing. One failing
// mandate does not abort the batch.
func (s *service) GenerateTransactions(ctx context.Context) (*GenerationReport, error) {
	mandates, err := s.repo.ListDebitableMandates(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	paymentDate := now.AddDate(0, 0, s.cfg.DebitLeadDays)
	report := &GenerationReport{Transactions: []Transaction{}}

	for _, m := range mandates {
		amount := s.cfg.AnnualFee.Add(m.Donation)
		if !amount.IsPositive() {
			continue
		}

		t, err := s.repo.CreateTransaction(ctx, m.ID, amount, now, paymentDate)
		if err != nil {
			if errors.Is(err, ErrOpenTransaction) {
				continue
			}
			report.Errors = append(report.Errors, api.BatchItemError{ID: m.ID, Reason: err.Error()})
			continue
		}

		report.Created++
		report.Transactions = append(report.Transactions, *t)

		if s.notifier != nil {
			if p, perr := s.personaRepo.FindByID(ctx, m.PersonaID); perr == nil {
				s.notifier.SendDebitPrenotification(ctx, p.Email, p.GivenName, amount, paymentDate)
			}
		}
	}

	logger.Info("lastschrift transactions generated",
		"created", report.Created,
		"errors", len(report.Errors),
	)
	return report, nil
}

// ExportPain renders all open transactions, optionally restricted to
// one mandate, as a pain.008.001.02 document.
func (s *service) ExportPain(ctx context.Context, mandateID int) ([]byte, error) {
	rows, err := s.repo.ListOpenDebitRows(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNothingToExport
	}

	creditor := Creditor{
		Name: s.cfg.CreditorName,
		IBAN: s.cfg.CreditorIBAN,
		BIC:  s.cfg.CreditorBIC,
		ID:   s.cfg.CreditorID,
	}

	doc := BuildPain008(rows, creditor, time.Now())
	out, err := EncodePain008(doc)
	if err != nil {
		return nil, err
	}

	metrics.RecordSepaExport()
	logger.Info("pain.008 exported", "transactions", len(rows))
	return out, nil
}

// FinalizeTransactions settles a batch of open transactions. Each
// transaction settles in its own database transaction; a conflict on
// one (already finalized, unknown id) is reported and the rest
// proceed.
func (s *service) FinalizeTransactions(ctx context.Context, ids []int, outcome Status, submittedBy *int) (*FinalizeReport, error) {
	if !outcome.Valid() || !outcome.Terminal() {
		return nil, ErrInvalidOutcome
	}

	report := &FinalizeReport{}
	for _, id := range ids {
		if _, err := s.repo.Finalize(ctx, id, outcome, submittedBy); err != nil {
			report.Errors = append(report.Errors, api.BatchItemError{ID: id, Reason: err.Error()})
			continue
		}
		report.Finalized++
	}

	logger.Info("lastschrift transactions finalized",
		"outcome", string(outcome),
		"finalized", report.Finalized,
		"errors", len(report.Errors),
	)
	return report, nil
}
