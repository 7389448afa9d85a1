package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"kassenwart/internal/metrics"
)

var (
	ErrPersonaNotFound     = errors.New("persona not found")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Repository is the single entry point for all balance mutation. Every
// write locks the persona row, applies the delta and appends exactly
// one finance log entry in the same database transaction.
type Repository interface {
	Credit(ctx context.Context, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error)
	BillPersona(ctx context.Context, personaID int, fee decimal.Decimal, submittedBy *int, note string) (BillOutcome, *FinanceLogEntry, error)
	ListLog(ctx context.Context, filter LogFilter) ([]FinanceLogEntry, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

type lockedPersona struct {
	ID          int             `db:"id"`
	Balance     decimal.Decimal `db:"balance"`
	IsMember    bool            `db:"is_member"`
	TrialMember bool            `db:"trial_member"`
}

func lockPersona(ctx context.Context, tx *sqlx.Tx, personaID int) (*lockedPersona, error) {
	p := &lockedPersona{}
	err := tx.QueryRowxContext(ctx, `
		SELECT id, balance, is_member, trial_member
		FROM personas
		WHERE id = $1
		FOR UPDATE
	`, personaID).StructScan(p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonaNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// appendLog writes the finance log entry paired with a balance
// mutation. Must run inside the same transaction as the mutation.
func appendLog(ctx context.Context, tx *sqlx.Tx, code LogCode, submittedBy *int, personaID int, delta, newBalance decimal.Decimal, transactionDate *time.Time, note string) (*FinanceLogEntry, error) {
	var members int
	if err := tx.GetContext(ctx, &members, `SELECT COUNT(*) FROM personas WHERE is_member = TRUE`); err != nil {
		return nil, err
	}

	entry := &FinanceLogEntry{}
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO finance_log (code, submitted_by, persona_id, delta, new_balance, transaction_date, change_note, members, total, member_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, ctime, code, submitted_by, persona_id, delta, new_balance, transaction_date, change_note, members, total, member_total
	`, code, submittedBy, personaID, delta, newBalance, transactionDate, note, members, TotalNotComputed, TotalNotComputed).StructScan(entry)
	if err != nil {
		return nil, err
	}

	metrics.RecordFinanceLogEntry(string(code))
	return entry, nil
}

func (r *repository) Credit(ctx context.Context, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := r.CreditTx(ctx, tx, personaID, amount, code, submittedBy, transactionDate, note)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditTx applies a positive delta within a caller-supplied
// transaction, so callers like transaction finalization can make the
// credit atomic with their own state change. A trial member converts to
// a full member on the first incoming payment.
func (r *repository) CreditTx(ctx context.Context, tx *sqlx.Tx, personaID int, amount decimal.Decimal, code LogCode, submittedBy *int, transactionDate *time.Time, note string) (*FinanceLogEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	p, err := lockPersona(ctx, tx, personaID)
	if err != nil {
		return nil, err
	}

	newBalance := p.Balance.Add(amount)
	if newBalance.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	convertTrial := p.TrialMember && (code == CodeIncrease || code == CodeLastschrift)
	_, err = tx.ExecContext(ctx, `
		UPDATE personas
		SET balance = $1,
		    trial_member = CASE WHEN $2 THEN FALSE ELSE trial_member END
		WHERE id = $3
	`, newBalance, convertTrial, p.ID)
	if err != nil {
		return nil, err
	}

	return appendLog(ctx, tx, code, submittedBy, personaID, amount, newBalance, transactionDate, note)
}

// BillPersona charges the period fee against the persona's balance.
// Trial members are exempt. If the balance does not cover the fee the
// charge is blocked entirely and the membership lapses instead; partial
// charges are never applied.
func (r *repository) BillPersona(ctx context.Context, personaID int, fee decimal.Decimal, submittedBy *int, note string) (BillOutcome, *FinanceLogEntry, error) {
	if !fee.IsPositive() {
		return "", nil, ErrNonPositiveAmount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback()

	p, err := lockPersona(ctx, tx, personaID)
	if err != nil {
		return "", nil, err
	}

	if !p.IsMember {
		return OutcomeNotMember, nil, tx.Commit()
	}
	if p.TrialMember {
		return OutcomeTrialExempt, nil, tx.Commit()
	}

	if p.Balance.LessThan(fee) {
		if _, err := tx.ExecContext(ctx, `UPDATE personas SET is_member = FALSE WHERE id = $1`, p.ID); err != nil {
			return "", nil, err
		}
		entry, err := appendLog(ctx, tx, CodeMembershipLapsed, submittedBy, personaID, decimal.Zero, p.Balance, nil, note)
		if err != nil {
			return "", nil, err
		}
		if err := tx.Commit(); err != nil {
			return "", nil, err
		}
		return OutcomeLapsed, entry, nil
	}

	newBalance := p.Balance.Sub(fee)
	if newBalance.IsNegative() {
		// Unreachable given the guard above; kept as the invariant
		// check demanded of every writer.
		return "", nil, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `UPDATE personas SET balance = $1 WHERE id = $2`, newBalance, p.ID); err != nil {
		return "", nil, err
	}

	entry, err := appendLog(ctx, tx, CodeDeduct, submittedBy, personaID, fee.Neg(), newBalance, nil, note)
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, err
	}
	return OutcomeBilled, entry, nil
}

func (r *repository) ListLog(ctx context.Context, filter LogFilter) ([]FinanceLogEntry, error) {
	where := []string{}
	args := []interface{}{}

	if filter.Code != "" {
		args = append(args, filter.Code)
		where = append(where, fmt.Sprintf("code = $%d", len(args)))
	}
	if filter.PersonaID != 0 {
		args = append(args, filter.PersonaID)
		where = append(where, fmt.Sprintf("persona_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("ctime >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("ctime <= $%d", len(args)))
	}

	query := `SELECT id, ctime, code, submitted_by, persona_id, delta, new_balance, transaction_date, change_note, members, total, member_total FROM finance_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	entries := []FinanceLogEntry{}
	err := r.db.SelectContext(ctx, &entries, query, args...)
	return entries, err
}
