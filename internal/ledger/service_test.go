package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kassenwart/internal/persona"
)

type MockLedgerRepo struct{ mock.Mock }
type MockPersonaRepo struct{ mock.Mock }
type MockMandateSource struct{ mock.Mock }
type MockNotifier struct{ mock.Mock }

func (m *MockLedgerRepo) Credit(ctx context.Context, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error) {
	args := m.Called(ctx, personaID, amount, code, submittedBy, transactionDate, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FinanceLogEntry), args.Error(1)
}

func (m *MockLedgerRepo) CreditTx(ctx context.Context, tx *sqlx.Tx, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error) {
	args := m.Called(ctx, tx, personaID, amount, code, submittedBy, transactionDate, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FinanceLogEntry), args.Error(1)
}

func (m *MockLedgerRepo) BillPersona(ctx context.Context, personaID int, fee decimal.Decimal, submittedBy *int, note string) (BillOutcome, *FinanceLogEntry, error) {
	args := m.Called(ctx, personaID, fee, submittedBy, note)
	var entry *FinanceLogEntry
	if args.Get(1) != nil {
		entry = args.Get(1).(*FinanceLogEntry)
	}
	return args.Get(0).(BillOutcome), entry, args.Error(2)
}

func (m *MockLedgerRepo) ListLog(ctx context.Context, filter LogFilter) ([]FinanceLogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]FinanceLogEntry), args.Error(1)
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

func (m *MockMandateSource) PersonaIDsWithActiveMandate(ctx context.Context) (map[int]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]bool), args.Error(1)
}

func (m *MockNotifier) SendPaymentReceipt(ctx context.Context, to, name string, amount, newBalance decimal.Decimal) error {
	return m.Called(ctx, to, name, amount, newBalance).Error(0)
}

func TestBookPayment_CreditsAndNotifies(t *testing.T) {
	lr := new(MockLedgerRepo)
	pr := new(MockPersonaRepo)
	nt := new(MockNotifier)

	entry := &FinanceLogEntry{ID: 1, PersonaID: 5, Code: CodeIncrease, Delta: dec("25.00"), NewBalance: dec("30.00")}
	lr.On("Credit", mock.Anything, 5, mock.Anything, CodeIncrease, (*int)(nil), (*time.Time)(nil), "transfer").Return(entry, nil)
	pr.On("FindByID", mock.Anything, 5).Return(&persona.Persona{ID: 5, GivenName: "Anton", Email: "anton@example.com"}, nil)
	nt.On("SendPaymentReceipt", mock.Anything, "anton@example.com", "Anton", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(lr, pr, nil, nt)
	got, err := svc.BookPayment(context.Background(), 5, dec("25.00"), nil, nil, "transfer")
	require.NoError(t, err)
	assert.Equal(t, entry, got)
	nt.AssertExpectations(t)
}

func TestBookPayment_RepoErrorPropagates(t *testing.T) {
	lr := new(MockLedgerRepo)
	pr := new(MockPersonaRepo)

	lr.On("Credit", mock.Anything, 5, mock.Anything, CodeIncrease, (*int)(nil), (*time.Time)(nil), "").Return(nil, ErrPersonaNotFound)

	svc := NewService(lr, pr, nil, nil)
	_, err := svc.BookPayment(context.Background(), 5, dec("25.00"), nil, nil, "")
	assert.ErrorIs(t, err, ErrPersonaNotFound)
}

func TestBillSemester_SortsMembersIntoOutcomes(t *testing.T) {
	lr := new(MockLedgerRepo)
	pr := new(MockPersonaRepo)
	ms := new(MockMandateSource)

	fee := dec("2.50")
	pr.On("ListMembers", mock.Anything).Return([]persona.Persona{
		{ID: 1}, // billed
		{ID: 2}, // lastschrift coverage
		{ID: 3}, // trial member
		{ID: 4}, // insufficient balance
		{ID: 5}, // repo error
	}, nil)
	ms.On("PersonaIDsWithActiveMandate", mock.Anything).Return(map[int]bool{2: true}, nil)

	lr.On("BillPersona", mock.Anything, 1, fee, (*int)(nil), mock.Anything).Return(OutcomeBilled, &FinanceLogEntry{}, nil)
	lr.On("BillPersona", mock.Anything, 3, fee, (*int)(nil), mock.Anything).Return(OutcomeTrialExempt, nil, nil)
	lr.On("BillPersona", mock.Anything, 4, fee, (*int)(nil), mock.Anything).Return(OutcomeLapsed, &FinanceLogEntry{}, nil)
	lr.On("BillPersona", mock.Anything, 5, fee, (*int)(nil), mock.Anything).Return(BillOutcome(""), nil, errors.New("deadlock"))

	svc := NewService(lr, pr, ms, nil)
	report, err := svc.BillSemester(context.Background(), fee, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Billed)
	assert.Equal(t, 1, report.LastschriftExempt)
	assert.Equal(t, 1, report.TrialExempt)
	assert.Equal(t, 1, report.Lapsed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 5, report.Errors[0].ID)
	assert.True(t, report.TotalCollected.Equal(fee))
	lr.AssertExpectations(t)
}

func TestBillSemester_OneErrorDoesNotAbortRun(t *testing.T) {
	lr := new(MockLedgerRepo)
	pr := new(MockPersonaRepo)

	fee := dec("2.50")
	pr.On("ListMembers", mock.Anything).Return([]persona.Persona{{ID: 1}, {ID: 2}}, nil)

	lr.On("BillPersona", mock.Anything, 1, fee, (*int)(nil), mock.Anything).Return(BillOutcome(""), nil, errors.New("boom"))
	lr.On("BillPersona", mock.Anything, 2, fee, (*int)(nil), mock.Anything).Return(OutcomeBilled, &FinanceLogEntry{}, nil)

	svc := NewService(lr, pr, nil, nil)
	report, err := svc.BillSemester(context.Background(), fee, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Billed)
	require.Len(t, report.Errors, 1)
}
