package lastschrift

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kassenwart/internal/config"
	"kassenwart/internal/persona"
)

type MockMandateRepo struct{ mock.Mock }
type MockPersonaRepo struct{ mock.Mock }
type MockNotifier struct{ mock.Mock }

func (m *MockMandateRepo) CreateMandate(ctx context.Context, personaID int, donation decimal.Decimal, iban, accountOwner, notes string) (*Mandate, error) {
	args := m.Called(ctx, personaID, donation, iban, accountOwner, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Mandate), args.Error(1)
}

func (m *MockMandateRepo) GetMandate(ctx context.Context, id int) (*Mandate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Mandate), args.Error(1)
}

func (m *MockMandateRepo) ListMandates(ctx context.Context, activeOnly bool) ([]Mandate, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Mandate), args.Error(1)
}

func (m *MockMandateRepo) RevokeMandate(ctx context.Context, id int) (*Mandate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Mandate), args.Error(1)
}

func (m *MockMandateRepo) PersonaIDsWithActiveMandate(ctx context.Context) (map[int]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]bool), args.Error(1)
}

func (m *MockMandateRepo) ListDebitableMandates(ctx context.Context) ([]Mandate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Mandate), args.Error(1)
}

func (m *MockMandateRepo) CreateTransaction(ctx context.Context, mandateID int, amount decimal.Decimal, issuedAt, paymentDate time.Time) (*Transaction, error) {
	args := m.Called(ctx, mandateID, amount, issuedAt, paymentDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockMandateRepo) ListOpenDebitRows(ctx context.Context, mandateID int) ([]debitRow, error) {
	args := m.Called(ctx, mandateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]debitRow), args.Error(1)
}

func (m *MockMandateRepo) Finalize(ctx context.Context, transactionID int, outcome Status, submittedBy *int) (*Transaction, error) {
	args := m.Called(ctx, transactionID, outcome, submittedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockPersonaRepo) Create(ctx context.Context, givenName, familyName, email, passwordHash, role string) (*persona.Persona, error) {
	args := m.Called(ctx, givenName, familyName, email, passwordHash, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*persona.Persona), args.Error(1)
}

func (m *MockPersonaRepo) FindByEmail(ctx context.Context, email string) (*persona.Persona, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*persona.Persona), args.Error(1)
}

func (m *MockPersonaRepo) FindByID(ctx context.Context, id int) (*persona.Persona, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*persona.Persona), args.Error(1)
}

func (m *MockPersonaRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockPersonaRepo) ListMembers(ctx context.Context) ([]persona.Persona, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]persona.Persona), args.Error(1)
}

func (m *MockNotifier) SendDebitPrenotification(ctx context.Context, to, name string, amount decimal.Decimal, paymentDate time.Time) error {
	return m.Called(ctx, to, name, amount, paymentDate).Error(0)
}

func (m *MockNotifier) SendMandateRevoked(ctx context.Context, to, name string) error {
	return m.Called(ctx, to, name).Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		AnnualFee:     dec("5.00"),
		DebitLeadDays: 14,
		CreditorName:  testCreditor.Name,
		CreditorIBAN:  testCreditor.IBAN,
		CreditorBIC:   testCreditor.BIC,
		CreditorID:    testCreditor.ID,
	}
}

func TestCreateMandate_NormalizesAndValidatesIBAN(t *testing.T) {
	repo := new(MockMandateRepo)
	pr := new(MockPersonaRepo)

	pr.On("FindByID", mock.Anything, 3).Return(&persona.Persona{ID: 3}, nil)
	repo.On("CreateMandate", mock.Anything, 3, mock.Anything, "DE89370400440532013000", "Emilia Eventis", "").
		Return(&Mandate{ID: 1, PersonaID: 3, IBAN: "DE89370400440532013000"}, nil)

	svc := NewService(repo, pr, nil, testConfig())
	m, err := svc.CreateMandate(context.Background(), 3, dec("10.00"), "de89 3704 0044 0532 0130 00", "Emilia Eventis", "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ID)
	repo.AssertExpectations(t)
}

func TestCreateMandate_RejectsBadIBANAndDonation(t *testing.T) {
	svc := NewService(new(MockMandateRepo), new(MockPersonaRepo), nil, testConfig())

	_, err := svc.CreateMandate(context.Background(), 3, dec("10.00"), "DE00123", "X", "")
	assert.ErrorIs(t, err, ErrInvalidIBAN)

	_, err = svc.CreateMandate(context.Background(), 3, dec("-1.00"), "DE89370400440532013000", "X", "")
	assert.ErrorIs(t, err, ErrInvalidDonation)

	_, err = svc.CreateMandate(context.Background(), 3, dec("1.005"), "DE89370400440532013000", "X", "")
	assert.ErrorIs(t, err, ErrInvalidDonation)
}

func TestGenerateTransactions_ChargesFeePlusDonation(t *testing.T) {
	repo := new(MockMandateRepo)
	pr := new(MockPersonaRepo)
	nt := new(MockNotifier)

	repo.On("ListDebitableMandates", mock.Anything).Return([]Mandate{
		{ID: 1, PersonaID: 10, Donation: dec("20.00")},
		{ID: 2, PersonaID: 11, Donation: decimal.Zero},
	}, nil)

	matchAmount := func(want string) interface{} {
		return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(dec(want)) })
	}
	repo.On("CreateTransaction", mock.Anything, 1, matchAmount("25.00"), mock.Anything, mock.Anything).
		Return(&Transaction{ID: 100, MandateID: 1, Amount: dec("25.00"), Status: StatusOpen}, nil)
	repo.On("CreateTransaction", mock.Anything, 2, matchAmount("5.00"), mock.Anything, mock.Anything).
		Return(&Transaction{ID: 101, MandateID: 2, Amount: dec("5.00"), Status: StatusOpen}, nil)

	pr.On("FindByID", mock.Anything, 10).Return(&persona.Persona{ID: 10, Email: "a@example.com", GivenName: "A"}, nil)
	pr.On("FindByID", mock.Anything, 11).Return(&persona.Persona{ID: 11, Email: "b@example.com", GivenName: "B"}, nil)
	nt.On("SendDebitPrenotification", mock.Anything, "a@example.com", "A", mock.Anything, mock.Anything).Return(nil)
	nt.On("SendDebitPrenotification", mock.Anything, "b@example.com", "B", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(repo, pr, nt, testConfig())
	report, err := svc.GenerateTransactions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	assert.Empty(t, report.Errors)
	repo.AssertExpectations(t)
	nt.AssertExpectations(t)
}

func TestGenerateTransactions_OpenTransactionIsNotDuplicated(t *testing.T) {
	repo := new(MockMandateRepo)
	pr := new(MockPersonaRepo)

	repo.On("ListDebitableMandates", mock.Anything).Return([]Mandate{{ID: 1, PersonaID: 10}}, nil)
	repo.On("CreateTransaction", mock.Anything, 1, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, ErrOpenTransaction)

	svc := NewService(repo, pr, nil, testConfig())
	report, err := svc.GenerateTransactions(context.Background())
	require.NoError(t, err)

	// A concurrent generation already created the transaction; that is
	// not an error, just nothing to do.
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, report.Errors)
}

func TestFinalizeTransactions_CollectsConflictsPerItem(t *testing.T) {
	repo := new(MockMandateRepo)

	repo.On("Finalize", mock.Anything, 1, StatusSuccess, (*int)(nil)).
		Return(&Transaction{ID: 1, Status: StatusSuccess}, nil)
	repo.On("Finalize", mock.Anything, 2, StatusSuccess, (*int)(nil)).
		Return(nil, ErrAlreadyFinalized)
	repo.On("Finalize", mock.Anything, 3, StatusSuccess, (*int)(nil)).
		Return(&Transaction{ID: 3, Status: StatusSuccess}, nil)

	svc := NewService(repo, new(MockPersonaRepo), nil, testConfig())
	report, err := svc.FinalizeTransactions(context.Background(), []int{1, 2, 3}, StatusSuccess, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Finalized)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].ID)
	repo.AssertExpectations(t)
}

func TestFinalizeTransactions_RejectsNonTerminalOutcome(t *testing.T) {
	svc := NewService(new(MockMandateRepo), new(MockPersonaRepo), nil, testConfig())

	_, err := svc.FinalizeTransactions(context.Background(), []int{1}, StatusOpen, nil)
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = svc.FinalizeTransactions(context.Background(), []int{1}, Status("done"), nil)
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestExportPain_NothingOpen(t *testing.T) {
	repo := new(MockMandateRepo)
	repo.On("ListOpenDebitRows", mock.Anything, 0).Return([]debitRow{}, nil)

	svc := NewService(repo, new(MockPersonaRepo), nil, testConfig())
	_, err := svc.ExportPain(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestExportPain_RendersOpenTransactions(t *testing.T) {
	repo := new(MockMandateRepo)
	repo.On("ListOpenDebitRows", mock.Anything, 0).Return([]debitRow{
		debitRowFixture(1, 10, "25.00", false),
	}, nil)

	svc := NewService(repo, new(MockPersonaRepo), nil, testConfig())
	out, err := svc.ExportPain(context.Background(), 0)
	require.NoError(t, err)
	assert.Contains(t, string(out), "pain.008.001.02")
	assert.Contains(t, string(out), "kassenwart-tx-1")
	assert.Contains(t, string(out), "<CtrlSum>25.00</CtrlSum>")
}
