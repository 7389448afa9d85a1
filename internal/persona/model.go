package persona

import (
	"time"

	"github.com/shopspring/decimal"
)

// Persona is a natural person known to the association: account
// credentials, membership flags and the running balance.
type Persona struct {
	ID           int             `db:"id" json:"id"`
	GivenName    string          `db:"given_name" json:"given_name"`
	FamilyName   string          `db:"family_name" json:"family_name"`
	Email        string          `db:"email" json:"email"`
	PasswordHash string          `db:"password_hash" json:"-"`
	Role         string          `db:"role" json:"role"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	IsMember     bool            `db:"is_member" json:"is_member"`
	TrialMember  bool            `db:"trial_member" json:"trial_member"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type RegisterRequest struct {
	GivenName  string `json:"given_name" binding:"required"`
	FamilyName string `json:"family_name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	Persona      Persona `json:"persona"`
}
