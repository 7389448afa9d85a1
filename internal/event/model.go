package event

import "time"

type Event struct {
	ID         int       `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Shortname  string    `db:"shortname" json:"shortname"`
	IsLocked   bool      `db:"is_locked" json:"is_locked"`
	IsArchived bool      `db:"is_archived" json:"is_archived"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Part is one bookable segment of an event, e.g. the first or second
// half of an academy. Fee conditions reference parts by shortname.
type Part struct {
	ID        int       `db:"id" json:"id"`
	EventID   int       `db:"event_id" json:"event_id"`
	Title     string    `db:"title" json:"title"`
	Shortname string    `db:"shortname" json:"shortname"`
	Begin     time.Time `db:"part_begin" json:"begin"`
	End       time.Time `db:"part_end" json:"end"`
}

type FieldKind string

const (
	FieldBool   FieldKind = "bool"
	FieldInt    FieldKind = "int"
	FieldString FieldKind = "string"
)

// FieldDefinition declares a custom registration field of an event.
type FieldDefinition struct {
	ID        int       `db:"id" json:"id"`
	EventID   int       `db:"event_id" json:"event_id"`
	FieldName string    `db:"field_name" json:"field_name"`
	Kind      FieldKind `db:"kind" json:"kind"`
}
