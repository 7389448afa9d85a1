package fee

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrDefinitionNotFound = errors.New("fee definition not found")
	ErrEventLocked        = errors.New("event is locked or archived")
)

type Repository interface {
	Create(ctx context.Context, def *Definition) (*Definition, error)
	GetByID(ctx context.Context, id int) (*Definition, error)
	ListByEvent(ctx context.Context, eventID int) ([]Definition, error)
	Update(ctx context.Context, def *Definition) (*Definition, error)
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, def *Definition) (*Definition, error) {
	created := &Definition{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO fee_definitions (event_id, title, kind, amount, condition, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, event_id, title, kind, amount, condition, notes, created_at, updated_at
	`, def.EventID, def.Title, def.Kind, def.Amount, def.Condition, def.Notes).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Definition, error) {
	def := &Definition{}
	err := r.db.GetContext(ctx, def, `SELECT * FROM fee_definitions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID int) ([]Definition, error) {
	defs := []Definition{}
	err := r.db.SelectContext(ctx, &defs, `
		SELECT *
		FROM fee_definitions
		WHERE event_id = $1
		ORDER BY id
	`, eventID)
	return defs, err
}

func (r *repository) Update(ctx context.Context, def *Definition) (*Definition, error) {
	updated := &Definition{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE fee_definitions
		SET title = $1, kind = $2, amount = $3, condition = $4, notes = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING id, event_id, title, kind, amount, condition, notes, created_at, updated_at
	`, def.Title, def.Kind, def.Amount, def.Condition, def.Notes, def.ID).StructScan(updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete refuses to remove a definition whose event is locked or
// archived, because computed fees of such events must stay
// reproducible.
func (r *repository) Delete(ctx context.Context, id int) error {
	var locked bool
	err := r.db.GetContext(ctx, &locked, `
		SELECT e.is_locked OR e.is_archived
		FROM fee_definitions f
		JOIN events e ON e.id = f.event_id
		WHERE f.id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDefinitionNotFound
	}
	if err != nil {
		return err
	}
	if locked {
		return ErrEventLocked
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM fee_definitions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}
