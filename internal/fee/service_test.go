package fee

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kassenwart/internal/event"
	"kassenwart/internal/feecond"
	"kassenwart/internal/registration"
)

type MockFeeRepo struct{ mock.Mock }
type MockEventRepo struct{ mock.Mock }
type MockRegistrationRepo struct{ mock.Mock }

func (m *MockFeeRepo) Create(ctx context.Context, def *Definition) (*Definition, error) {
	args := m.Called(ctx, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Definition), args.Error(1)
}

func (m *MockFeeRepo) GetByID(ctx context.Context, id int) (*Definition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Definition), args.Error(1)
}

func (m *MockFeeRepo) ListByEvent(ctx context.Context, eventID int) ([]Definition, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Definition), args.Error(1)
}

func (m *MockFeeRepo) Update(ctx context.Context, def *Definition) (*Definition, error) {
	args := m.Called(ctx, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Definition), args.Error(1)
}

func (m *MockFeeRepo) Delete(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockEventRepo) GetEventByID(ctx context.Context, id int) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) ListEvents(ctx context.Context) ([]event.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.Event), args.Error(1)
}

func (m *MockEventRepo) ListParts(ctx context.Context, eventID int) ([]event.Part, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.Part), args.Error(1)
}

func (m *MockEventRepo) ListFieldDefinitions(ctx context.Context, eventID int) ([]event.FieldDefinition, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.FieldDefinition), args.Error(1)
}

func (m *MockEventRepo) Schema(ctx context.Context, eventID int) (*feecond.Schema, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feecond.Schema), args.Error(1)
}

func (m *MockRegistrationRepo) GetByID(ctx context.Context, id int) (*registration.Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registration.Registration), args.Error(1)
}

func (m *MockRegistrationRepo) ListByEvent(ctx context.Context, eventID int) ([]*registration.Registration, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*registration.Registration), args.Error(1)
}

func (m *MockRegistrationRepo) UpdateAmountOwed(ctx context.Context, id int, amountOwed decimal.Decimal) error {
	return m.Called(ctx, id, amountOwed).Error(0)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(fr *MockFeeRepo, er *MockEventRepo, rr *MockRegistrationRepo) Service {
	return NewService(fr, er, rr)
}

func singlePartEvent(shortname string) []event.Part {
	return []event.Part{
		{ID: 1, EventID: 1, Shortname: shortname, Title: shortname, Begin: time.Now(), End: time.Now().Add(24 * time.Hour)},
	}
}

func registeredIn(partIDs ...int) map[int]registration.RegistrationPart {
	parts := map[int]registration.RegistrationPart{}
	for _, id := range partIDs {
		parts[id] = registration.RegistrationPart{PartID: id, Status: registration.StatusParticipant}
	}
	return parts
}

func TestTotalOwed_SingleConditionalFee(t *testing.T) {
	svc := newTestService(new(MockFeeRepo), new(MockEventRepo), new(MockRegistrationRepo))

	reg := &registration.Registration{ID: 1, EventID: 1, Parts: registeredIn(1)}
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("10.50"), Condition: "part.Wu"},
	}

	owed, err := svc.TotalOwed(reg, singlePartEvent("Wu"), defs)
	require.NoError(t, err)
	assert.True(t, owed.Equal(dec("10.50")), "got %s", owed)
}

func TestTotalOwed_FeeNotApplicableWhenAbsent(t *testing.T) {
	svc := newTestService(new(MockFeeRepo), new(MockEventRepo), new(MockRegistrationRepo))

	reg := &registration.Registration{ID: 1, EventID: 1, Parts: map[int]registration.RegistrationPart{}}
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("10.50"), Condition: "part.Wu"},
	}

	owed, err := svc.TotalOwed(reg, singlePartEvent("Wu"), defs)
	require.NoError(t, err)
	assert.True(t, owed.IsZero(), "got %s", owed)
}

func TestTotalOwed_DiscountForChild(t *testing.T) {
	svc := newTestService(new(MockFeeRepo), new(MockEventRepo), new(MockRegistrationRepo))

	reg := &registration.Registration{
		ID:      1,
		EventID: 1,
		Parts:   registeredIn(1),
		Fields:  types.JSONText(`{"is_child": true}`),
	}
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("123.00"), Condition: "part.1.H."},
		{ID: 2, EventID: 1, Kind: KindDiscount, Amount: dec("-12.00"), Condition: "part.1.H. and field.is_child"},
	}

	owed, err := svc.TotalOwed(reg, singlePartEvent("1.H."), defs)
	require.NoError(t, err)
	assert.True(t, owed.Equal(dec("111.00")), "got %s", owed)
}

func TestTotalOwed_ClampedAtZero(t *testing.T) {
	svc := newTestService(new(MockFeeRepo), new(MockEventRepo), new(MockRegistrationRepo))

	reg := &registration.Registration{ID: 1, EventID: 1, Parts: registeredIn(1)}
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("10.00"), Condition: "any_part"},
		{ID: 2, EventID: 1, Kind: KindDiscount, Amount: dec("-25.00"), Condition: "any_part"},
	}

	owed, err := svc.TotalOwed(reg, singlePartEvent("Wu"), defs)
	require.NoError(t, err)
	assert.True(t, owed.IsZero(), "total owed must never go negative, got %s", owed)
}

func TestTotalOwed_UnconditionalFee(t *testing.T) {
	svc := newTestService(new(MockFeeRepo), new(MockEventRepo), new(MockRegistrationRepo))

	reg := &registration.Registration{ID: 1, EventID: 1, Parts: map[int]registration.RegistrationPart{}}
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindSurcharge, Amount: dec("3.30"), Condition: ""},
	}

	owed, err := svc.TotalOwed(reg, singlePartEvent("Wu"), defs)
	require.NoError(t, err)
	assert.True(t, owed.Equal(dec("3.30")), "got %s", owed)
}

func TestCreateDefinition_RejectsBadInput(t *testing.T) {
	fr := new(MockFeeRepo)
	er := new(MockEventRepo)
	er.On("GetEventByID", mock.Anything, 1).Return(&event.Event{ID: 1, Shortname: "pa14"}, nil)
	er.On("Schema", mock.Anything, 1).Return(feecond.NewSchema([]string{"Wu"}, []string{"is_child"}), nil)

	svc := newTestService(fr, er, new(MockRegistrationRepo))
	ctx := context.Background()

	tests := []struct {
		name    string
		def     *Definition
		wantErr error
	}{
		{
			name:    "unknown kind",
			def:     &Definition{EventID: 1, Title: "x", Kind: "mystery", Amount: dec("1.00")},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "three fractional digits",
			def:     &Definition{EventID: 1, Title: "x", Kind: KindRegular, Amount: dec("1.005")},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "positive discount",
			def:     &Definition{EventID: 1, Title: "x", Kind: KindDiscount, Amount: dec("5.00")},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative regular fee",
			def:     &Definition{EventID: 1, Title: "x", Kind: KindRegular, Amount: dec("-5.00")},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "malformed condition",
			def:     &Definition{EventID: 1, Title: "x", Kind: KindRegular, Amount: dec("5.00"), Condition: "part.Wu and ("},
			wantErr: ErrInvalidCondition,
		},
		{
			name:    "unknown part reference",
			def:     &Definition{EventID: 1, Title: "x", Kind: KindRegular, Amount: dec("5.00"), Condition: "part.Nope"},
			wantErr: ErrInvalidCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDefinition(ctx, tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	fr.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateDefinition_ValidPersists(t *testing.T) {
	fr := new(MockFeeRepo)
	er := new(MockEventRepo)
	er.On("GetEventByID", mock.Anything, 1).Return(&event.Event{ID: 1}, nil)
	er.On("Schema", mock.Anything, 1).Return(feecond.NewSchema([]string{"Wu"}, nil), nil)

	def := &Definition{EventID: 1, Title: "participation fee", Kind: KindRegular, Amount: dec("10.50"), Condition: "part.Wu"}
	fr.On("Create", mock.Anything, def).Return(&Definition{ID: 7}, nil)

	svc := newTestService(fr, er, new(MockRegistrationRepo))
	created, err := svc.CreateDefinition(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, 7, created.ID)
	fr.AssertExpectations(t)
}

func TestRecomputeEvent_UpdatesChangedOnly(t *testing.T) {
	fr := new(MockFeeRepo)
	er := new(MockEventRepo)
	rr := new(MockRegistrationRepo)

	parts := singlePartEvent("Wu")
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("10.50"), Condition: "part.Wu"},
	}

	er.On("GetEventByID", mock.Anything, 1).Return(&event.Event{ID: 1, Shortname: "pa14"}, nil)
	er.On("ListParts", mock.Anything, 1).Return(parts, nil)
	fr.On("ListByEvent", mock.Anything, 1).Return(defs, nil)
	rr.On("ListByEvent", mock.Anything, 1).Return([]*registration.Registration{
		{ID: 1, EventID: 1, Parts: registeredIn(1), AmountOwed: dec("10.50")},
		{ID: 2, EventID: 1, Parts: registeredIn(1), AmountOwed: decimal.Zero},
	}, nil)
	rr.On("UpdateAmountOwed", mock.Anything, 2, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(dec("10.50"))
	})).Return(nil)

	svc := newTestService(fr, er, rr)
	report, err := svc.RecomputeEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Registrations)
	assert.Equal(t, 1, report.Changed)
	rr.AssertExpectations(t)
}

func TestFeeStats_PaidCappedAtOwed(t *testing.T) {
	fr := new(MockFeeRepo)
	er := new(MockEventRepo)
	rr := new(MockRegistrationRepo)

	parts := singlePartEvent("Wu")
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("100.00"), Condition: "part.Wu"},
	}

	er.On("ListParts", mock.Anything, 1).Return(parts, nil)
	fr.On("ListByEvent", mock.Anything, 1).Return(defs, nil)
	rr.On("ListByEvent", mock.Anything, 1).Return([]*registration.Registration{
		// Over-payer: paid 150 against 100 owed; stats must cap at 100.
		{ID: 1, EventID: 1, Parts: registeredIn(1), AmountPaid: dec("150.00")},
		// Half-payer.
		{ID: 2, EventID: 1, Parts: registeredIn(1), AmountPaid: dec("50.00")},
	}, nil)

	svc := newTestService(fr, er, rr)
	stats, err := svc.FeeStats(context.Background(), 1)
	require.NoError(t, err)

	st := stats[KindRegular]
	assert.True(t, st.Owed.Equal(dec("200.00")), "owed %s", st.Owed)
	assert.True(t, st.Paid.Equal(dec("150.00")), "paid %s", st.Paid)
}

func TestFeeStats_ProRataRemainderReconciles(t *testing.T) {
	fr := new(MockFeeRepo)
	er := new(MockEventRepo)
	rr := new(MockRegistrationRepo)

	parts := singlePartEvent("Wu")
	defs := []Definition{
		{ID: 1, EventID: 1, Kind: KindRegular, Amount: dec("10.00"), Condition: "part.Wu"},
		{ID: 2, EventID: 1, Kind: KindSurcharge, Amount: dec("10.00"), Condition: "part.Wu"},
		{ID: 3, EventID: 1, Kind: KindRegular, Amount: dec("10.00"), Condition: "part.Wu"},
	}

	er.On("ListParts", mock.Anything, 1).Return(parts, nil)
	fr.On("ListByEvent", mock.Anything, 1).Return(defs, nil)
	// Paid 10.00 of 30.00: each definition's share rounds to 3.33, which
	// would sum to 9.99. The remainder lands on the last definition.
	rr.On("ListByEvent", mock.Anything, 1).Return([]*registration.Registration{
		{ID: 1, EventID: 1, Parts: registeredIn(1), AmountPaid: dec("10.00")},
	}, nil)

	svc := newTestService(fr, er, rr)
	stats, err := svc.FeeStats(context.Background(), 1)
	require.NoError(t, err)

	regular := stats[KindRegular]
	surcharge := stats[KindSurcharge]
	assert.True(t, regular.Paid.Equal(dec("6.67")), "regular paid %s", regular.Paid)
	assert.True(t, surcharge.Paid.Equal(dec("3.33")), "surcharge paid %s", surcharge.Paid)
	assert.True(t, regular.Paid.Add(surcharge.Paid).Equal(dec("10.00")))
}
