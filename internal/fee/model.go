package fee

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindRegular           Kind = "regular"
	KindReduced           Kind = "reduced"
	KindSurcharge         Kind = "surcharge"
	KindDiscount          Kind = "discount"
	KindSolidaryReduction Kind = "solidary_reduction"
	KindExternal          Kind = "external"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRegular, KindReduced, KindSurcharge, KindDiscount, KindSolidaryReduction, KindExternal:
		return true
	}
	return false
}

// Definition is a conditional charge or discount attached to an event.
// Amount carries two fractional digits; discounts are negative.
type Definition struct {
	ID        int             `db:"id" json:"id"`
	EventID   int             `db:"event_id" json:"event_id"`
	Title     string          `db:"title" json:"title"`
	Kind      Kind            `db:"kind" json:"kind"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Condition string          `db:"condition" json:"condition"`
	Notes     string          `db:"notes" json:"notes"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// KindStats aggregates applied fee amounts of one kind across the
// registrations of an event.
type KindStats struct {
	Owed decimal.Decimal `json:"owed"`
	Paid decimal.Decimal `json:"paid"`
}
