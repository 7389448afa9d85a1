package lastschrift

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"kassenwart/internal/ledger"
	"kassenwart/internal/metrics"
)

var (
	ErrMandateNotFound     = errors.New("mandate not found")
	ErrMandateRevoked      = errors.New("mandate already revoked")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyFinalized    = errors.New("transaction already finalized")
	ErrOpenTransaction     = errors.New("mandate already has an open transaction")
)

const mandateColumns = `id, persona_id, donation, iban, account_owner, granted_at, revoked_at, notes`

type Repository interface {
	CreateMandate(ctx context.Context, personaID int, donation decimal.Decimal, iban, accountOwner, notes string) (*Mandate, error)
	GetMandate(ctx context.Context, id int) (*Mandate, error)
	ListMandates(ctx context.Context, activeOnly bool) ([]Mandate, error)
	RevokeMandate(ctx context.Context, id int) (*Mandate, error)
	PersonaIDsWithActiveMandate(ctx context.Context) (map[int]bool, error)
	ListDebitableMandates(ctx context.Context) ([]Mandate, error)
	CreateTransaction(ctx context.Context, mandateID int, amount decimal.Decimal, issuedAt, paymentDate time.Time) (*Transaction, error)
	ListOpenDebitRows(ctx context.Context, mandateID int) ([]debitRow, error)
	Finalize(ctx context.Context, transactionID int, outcome Status, submittedBy *int) (*Transaction, error)
}

type repository struct {
	db     *sqlx.DB
	ledger ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo ledger.Repository) Repository {
	return &repository{db: db, ledger: ledgerRepo}
}

func (r *repository) CreateMandate(ctx context.Context, personaID int, donation decimal.Decimal, iban, accountOwner, notes string) (*Mandate, error) {
	m := &Mandate{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO lastschrift_mandates (persona_id, donation, iban, account_owner, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+mandateColumns,
		personaID, donation, iban, accountOwner, notes).StructScan(m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repository) GetMandate(ctx context.Context, id int) (*Mandate, error) {
	m := &Mandate{}
	err := r.db.GetContext(ctx, m, `SELECT `+mandateColumns+` FROM lastschrift_mandates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMandateNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repository) ListMandates(ctx context.Context, activeOnly bool) ([]Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM lastschrift_mandates`
	if activeOnly {
		query += ` WHERE revoked_at IS NULL`
	}
	query += ` ORDER BY id`

	mandates := []Mandate{}
	err := r.db.SelectContext(ctx, &mandates, query)
	return mandates, err
}

// RevokeMandate sets revoked_at once. Revoking an already revoked
// mandate is a conflict, not a no-op.
func (r *repository) RevokeMandate(ctx context.Context, id int) (*Mandate, error) {
	m := &Mandate{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE lastschrift_mandates
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
		RETURNING `+mandateColumns, id).StructScan(m)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := r.GetMandate(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrMandateRevoked
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repository) PersonaIDsWithActiveMandate(ctx context.Context) (map[int]bool, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT persona_id FROM lastschrift_mandates WHERE revoked_at IS NULL
	`)
	if err != nil {
		return nil, err
	}

	covered := make(map[int]bool, len(ids))
	for _, id := range ids {
		covered[id] = true
	}
	return covered, nil
}

// ListDebitableMandates returns active mandates without an open
// transaction. Generation built on this set is idempotent per period.
func (r *repository) ListDebitableMandates(ctx context.Context) ([]Mandate, error) {
	mandates := []Mandate{}
	err := r.db.SelectContext(ctx, &mandates, `
		SELECT `+mandateColumns+`
		FROM lastschrift_mandates m
		WHERE m.revoked_at IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM lastschrift_transactions t
			WHERE t.mandate_id = m.id AND t.status = 'open'
		  )
		ORDER BY m.id
	`)
	return mandates, err
}

func (r *repository) CreateTransaction(ctx context.Context, mandateID int, amount decimal.Decimal, issuedAt, paymentDate time.Time) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO lastschrift_transactions (mandate_id, issued_at, payment_date, amount, status)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING id, mandate_id, issued_at, payment_date, amount, tally, status
	`, mandateID, issuedAt, paymentDate, amount).StructScan(t)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOpenTransaction
		}
		return nil, err
	}

	metrics.RecordTransactionGenerated()
	return t, nil
}

func (r *repository) ListOpenDebitRows(ctx context.Context, mandateID int) ([]debitRow, error) {
	query := `
		SELECT t.id AS transaction_id, t.mandate_id, m.persona_id, t.amount, t.payment_date,
		       m.iban, m.account_owner, m.granted_at,
		       p.given_name, p.family_name,
		       EXISTS (
			SELECT 1 FROM lastschrift_transactions prior
			WHERE prior.mandate_id = t.mandate_id AND prior.status = 'success'
		       ) AS prior_success
		FROM lastschrift_transactions t
		JOIN lastschrift_mandates m ON m.id = t.mandate_id
		JOIN personas p ON p.id = m.persona_id
		WHERE t.status = 'open'`

	args := []interface{}{}
	if mandateID != 0 {
		query += ` AND t.mandate_id = $1`
		args = append(args, mandateID)
	}
	query += ` ORDER BY t.id`

	rows := []debitRow{}
	err := r.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

// Finalize moves an open transaction into a terminal status. The
// status change, the tally, any mandate revocation and the balance
// credit commit in one database transaction, so a success can never
// book without the ledger entry or vice versa.
func (r *repository) Finalize(ctx context.Context, transactionID int, outcome Status, submittedBy *int) (*Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var row struct {
		ID        int             `db:"id"`
		MandateID int             `db:"mandate_id"`
		PersonaID int             `db:"persona_id"`
		Amount    decimal.Decimal `db:"amount"`
		Status    Status          `db:"status"`
	}
	err = tx.QueryRowxContext(ctx, `
		SELECT t.id, t.mandate_id, m.persona_id, t.amount, t.status
		FROM lastschrift_transactions t
		JOIN lastschrift_mandates m ON m.id = t.mandate_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, transactionID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.Status.Terminal() {
		return nil, ErrAlreadyFinalized
	}

	tally := decimal.Zero
	if outcome == StatusSuccess {
		tally = row.Amount
	}

	updated := &Transaction{}
	err = tx.QueryRowxContext(ctx, `
		UPDATE lastschrift_transactions
		SET status = $1, tally = $2
		WHERE id = $3 AND status = 'open'
		RETURNING id, mandate_id, issued_at, payment_date, amount, tally, status
	`, outcome, tally, transactionID).StructScan(updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyFinalized
	}
	if err != nil {
		return nil, err
	}

	switch outcome {
	case StatusSuccess:
		note := fmt.Sprintf("direct debit %s", endToEndID(transactionID))
		paymentDate := updated.PaymentDate
		if _, err := r.ledger.CreditTx(ctx, tx, row.PersonaID, row.Amount, ledger.CodeLastschrift, submittedBy, &paymentDate, note); err != nil {
			return nil, err
		}
	case StatusFailure:
		// A failed collection ends the authorization; no further
		// transactions may be generated without a new mandate.
		if _, err := tx.ExecContext(ctx, `
			UPDATE lastschrift_mandates
			SET revoked_at = NOW()
			WHERE id = $1 AND revoked_at IS NULL
		`, row.MandateID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordTransactionFinalized(string(outcome))
	return updated, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
