package persona

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrPersonaNotFound = errors.New("persona not found")

type Repository interface {
	Create(ctx context.Context, givenName, familyName, email, passwordHash, role string) (*Persona, error)
	FindByEmail(ctx context.Context, email string) (*Persona, error)
	FindByID(ctx context.Context, id int) (*Persona, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListMembers(ctx context.Context) ([]Persona, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const personaColumns = `id, given_name, family_name, email, password_hash, role, balance, is_member, trial_member, created_at`

func (r *repository) Create(ctx context.Context, givenName, familyName, email, passwordHash, role string) (*Persona, error) {
	p := &Persona{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO personas (given_name, family_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+personaColumns+`
	`, givenName, familyName, email, passwordHash, role).StructScan(p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*Persona, error) {
	p := &Persona{}
	err := r.db.GetContext(ctx, p, `SELECT `+personaColumns+` FROM personas WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonaNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) FindByID(ctx context.Context, id int) (*Persona, error) {
	p := &Persona{}
	err := r.db.GetContext(ctx, p, `SELECT `+personaColumns+` FROM personas WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonaNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM personas WHERE email = $1)`, email)
	return exists, err
}

func (r *repository) ListMembers(ctx context.Context) ([]Persona, error) {
	members := []Persona{}
	err := r.db.SelectContext(ctx, &members, `
		SELECT `+personaColumns+`
		FROM personas
		WHERE is_member = TRUE
		ORDER BY id
	`)
	return members, err
}
