package integration

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kassenwart/internal/ledger"
)

func TestLedger_CreditAppendsLogAndUpdatesBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	personaID := createTestPersona(t, db, "credit@test.com", dec("12.50"), true, false)
	repo := ledger.NewRepository(db)
	ctx := context.Background()

	entry, err := repo.Credit(ctx, personaID, dec("50.00"), ledger.CodeIncrease, nil, nil, "bank transfer")
	require.NoError(t, err)
	assert.True(t, entry.Delta.Equal(dec("50.00")))
	assert.True(t, entry.NewBalance.Equal(dec("62.50")))

	var balance decimal.Decimal
	require.NoError(t, db.Get(&balance, `SELECT balance FROM personas WHERE id = $1`, personaID))
	assert.True(t, balance.Equal(dec("62.50")))

	var logCount int
	require.NoError(t, db.Get(&logCount, `SELECT COUNT(*) FROM finance_log WHERE persona_id = $1`, personaID))
	assert.Equal(t, 1, logCount)
}

func TestLedger_TrialMemberConvertsOnFirstPayment(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	personaID := createTestPersona(t, db, "trial@test.com", decimal.Zero, true, true)
	repo := ledger.NewRepository(db)

	_, err := repo.Credit(context.Background(), personaID, dec("5.00"), ledger.CodeIncrease, nil, nil, "")
	require.NoError(t, err)

	var trialMember bool
	require.NoError(t, db.Get(&trialMember, `SELECT trial_member FROM personas WHERE id = $1`, personaID))
	assert.False(t, trialMember)
}

func TestLedger_BillPersonaInsufficientBalanceLapses(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	personaID := createTestPersona(t, db, "poor@test.com", dec("1.00"), true, false)
	repo := ledger.NewRepository(db)

	outcome, entry, err := repo.BillPersona(context.Background(), personaID, dec("2.50"), nil, "semester fee")
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeLapsed, outcome)
	assert.True(t, entry.Delta.IsZero())

	var p struct {
		Balance  decimal.Decimal `db:"balance"`
		IsMember bool            `db:"is_member"`
	}
	require.NoError(t, db.Get(&p, `SELECT balance, is_member FROM personas WHERE id = $1`, personaID))
	// The charge was blocked entirely; no partial deduction.
	assert.True(t, p.Balance.Equal(dec("1.00")))
	assert.False(t, p.IsMember)
}

func TestLedger_BillPersonaChargesFee(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	personaID := createTestPersona(t, db, "rich@test.com", dec("10.00"), true, false)
	repo := ledger.NewRepository(db)

	outcome, entry, err := repo.BillPersona(context.Background(), personaID, dec("2.50"), nil, "semester fee")
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeBilled, outcome)
	assert.True(t, entry.Delta.Equal(dec("-2.50")))
	assert.True(t, entry.NewBalance.Equal(dec("7.50")))
}
