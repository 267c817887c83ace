package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attendance records one daily sign-in. (merchant_id, sign_in_date) is
// unique; the reward is credited through the ledger as signInBonus.
type Attendance struct {
	ID         uuid.UUID `json:"id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	SignInDate string    `json:"sign_in_date"` // YYYY-MM-DD, UTC
	Reward     int64     `json:"reward"`
	CreatedAt  time.Time `json:"created_at"`
}
