package registration

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type PartStatus string

const (
	StatusNotApplied  PartStatus = "not_applied"
	StatusApplied     PartStatus = "applied"
	StatusWaitlist    PartStatus = "waitlist"
	StatusParticipant PartStatus = "participant"
	StatusGuest       PartStatus = "guest"
	StatusCancelled   PartStatus = "cancelled"
	StatusRejected    PartStatus = "rejected"
)

// IsPresent reports whether the status counts as attending for fee
// purposes.
func (s PartStatus) IsPresent() bool {
	return s == StatusParticipant || s == StatusGuest
}

type Registration struct {
	ID         int             `db:"id" json:"id"`
	EventID    int             `db:"event_id" json:"event_id"`
	PersonaID  int             `db:"persona_id" json:"persona_id"`
	IsMember   bool            `db:"is_member" json:"is_member"`
	IsOrga     bool            `db:"is_orga" json:"is_orga"`
	AmountOwed decimal.Decimal `db:"amount_owed" json:"amount_owed"`
	AmountPaid decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Fields     types.JSONText  `db:"fields" json:"fields"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`

	// Parts is loaded separately, keyed by part id.
	Parts map[int]RegistrationPart `db:"-" json:"parts,omitempty"`
}

type RegistrationPart struct {
	RegistrationID int        `db:"registration_id" json:"registration_id"`
	PartID         int        `db:"part_id" json:"part_id"`
	Status         PartStatus `db:"status" json:"status"`
	LodgementID    *int       `db:"lodgement_id" json:"lodgement_id,omitempty"`
}

// FieldValues decodes the JSONB field blob. Unset blob yields an empty
// map.
func (r *Registration) FieldValues() (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if len(r.Fields) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(r.Fields, &values); err != nil {
		return nil, err
	}
	return values, nil
}
