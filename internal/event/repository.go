package event

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"kassenwart/internal/feecond"
)

var ErrEventNotFound = errors.New("event not found")

type Repository interface {
	GetEventByID(ctx context.Context, id int) (*Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	ListParts(ctx context.Context, eventID int) ([]Part, error)
	ListFieldDefinitions(ctx context.Context, eventID int) ([]FieldDefinition, error)
	Schema(ctx context.Context, eventID int) (*feecond.Schema, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetEventByID(ctx context.Context, id int) (*Event, error) {
	e := &Event{}
	err := r.db.GetContext(ctx, e, `SELECT * FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repository) ListEvents(ctx context.Context) ([]Event, error) {
	events := []Event{}
	err := r.db.SelectContext(ctx, &events, `SELECT * FROM events ORDER BY id`)
	return events, err
}

func (r *repository) ListParts(ctx context.Context, eventID int) ([]Part, error) {
	parts := []Part{}
	err := r.db.SelectContext(ctx, &parts, `
		SELECT id, event_id, title, shortname, part_begin, part_end
		FROM event_parts
		WHERE event_id = $1
		ORDER BY part_begin, id
	`, eventID)
	return parts, err
}

func (r *repository) ListFieldDefinitions(ctx context.Context, eventID int) ([]FieldDefinition, error) {
	fields := []FieldDefinition{}
	err := r.db.SelectContext(ctx, &fields, `
		SELECT id, event_id, field_name, kind
		FROM event_fields
		WHERE event_id = $1
		ORDER BY id
	`, eventID)
	return fields, err
}

// Schema collects the part shortnames and field names of an event for
// fee condition validation.
func (r *repository) Schema(ctx context.Context, eventID int) (*feecond.Schema, error) {
	parts, err := r.ListParts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	fields, err := r.ListFieldDefinitions(ctx, eventID)
	if err != nil {
		return nil, err
	}

	partNames := make([]string, 0, len(parts))
	for _, p := range parts {
		partNames = append(partNames, p.Shortname)
	}
	fieldNames := make([]string, 0, len(fields))
	for _, f := range fields {
		fieldNames = append(fieldNames, f.FieldName)
	}

	return feecond.NewSchema(partNames, fieldNames), nil
}
