package registration

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var ErrRegistrationNotFound = errors.New("registration not found")

type Repository interface {
	GetByID(ctx context.Context, id int) (*Registration, error)
	ListByEvent(ctx context.Context, eventID int) ([]*Registration, error)
	UpdateAmountOwed(ctx context.Context, id int, amountOwed decimal.Decimal) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id int) (*Registration, error) {
	reg := &Registration{}
	err := r.db.GetContext(ctx, reg, `
		SELECT id, event_id, persona_id, is_member, is_orga, amount_owed, amount_paid, fields, created_at, updated_at
		FROM registrations
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadParts(ctx, []*Registration{reg}); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID int) ([]*Registration, error) {
	regs := []*Registration{}
	err := r.db.SelectContext(ctx, &regs, `
		SELECT id, event_id, persona_id, is_member, is_orga, amount_owed, amount_paid, fields, created_at, updated_at
		FROM registrations
		WHERE event_id = $1
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, err
	}

	if err := r.loadParts(ctx, regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *repository) loadParts(ctx context.Context, regs []*Registration) error {
	if len(regs) == 0 {
		return nil
	}

	ids := make([]int, 0, len(regs))
	byID := make(map[int]*Registration, len(regs))
	for _, reg := range regs {
		reg.Parts = map[int]RegistrationPart{}
		ids = append(ids, reg.ID)
		byID[reg.ID] = reg
	}

	query, args, err := sqlx.In(`
		SELECT registration_id, part_id, status, lodgement_id
		FROM registration_parts
		WHERE registration_id IN (?)
	`, ids)
	if err != nil {
		return err
	}

	parts := []RegistrationPart{}
	if err := r.db.SelectContext(ctx, &parts, r.db.Rebind(query), args...); err != nil {
		return err
	}

	for _, p := range parts {
		if reg, ok := byID[p.RegistrationID]; ok {
			reg.Parts[p.PartID] = p
		}
	}
	return nil
}

func (r *repository) UpdateAmountOwed(ctx context.Context, id int, amountOwed decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET amount_owed = $1, updated_at = NOW()
		WHERE id = $2
	`, amountOwed, id)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
