package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus represents the state of a merchant store account.
type MerchantStatus string

const (
	MerchantStatusPending  MerchantStatus = "PENDING"
	MerchantStatusApproved MerchantStatus = "APPROVED"
	MerchantStatusRejected MerchantStatus = "REJECTED"
	MerchantStatusFrozen   MerchantStatus = "FROZEN"
)

const (
	// MaxCreditScore is the starting and ceiling credit score.
	MaxCreditScore = 100
	// MaxStarRating is the star rating ceiling.
	MaxStarRating = 5.0
)

// Merchant represents a store account together with its wallet state.
// Balance and PendingAmount are only ever changed through the ledger,
// inside a transaction that holds the merchant row lock.
type Merchant struct {
	ID           uuid.UUID `json:"id"`
	MerchantCode string    `json:"merchant_code"` // human-facing store identifier
	StoreName    string    `json:"store_name"`

	VipLevel      int   `json:"vip_level"`
	Balance       int64 `json:"balance"`        // smallest currency unit
	PendingAmount int64 `json:"pending_amount"` // selling price of picked-up, unconfirmed orders
	TotalIncome   int64 `json:"total_income"`
	TotalProfit   int64 `json:"total_profit"`

	CreditScore        int     `json:"credit_score"`         // 0..100
	StarRating         float64 `json:"star_rating"`          // 0.0..5.0, one decimal
	PositiveRatingRate int     `json:"positive_rating_rate"` // percentage 0..100

	Status                MerchantStatus `json:"status"`
	IsWithdrawalForbidden bool           `json:"is_withdrawal_forbidden"`
	FundsPasswordHash     string         `json:"-"` // bcrypt, distinct from the login credential

	LastSignIn         *time.Time `json:"last_sign_in,omitempty"`
	ConsecutiveSignIns int        `json:"consecutive_sign_ins"`
	MonthlySignIns     int        `json:"monthly_sign_ins"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsApproved returns true if the merchant may receive and pick up orders.
func (m *Merchant) IsApproved() bool {
	return m.Status == MerchantStatusApproved
}

// ApplyCreditPenalty lowers the credit score, floored at zero.
func (m *Merchant) ApplyCreditPenalty(points int) {
	m.CreditScore -= points
	if m.CreditScore < 0 {
		m.CreditScore = 0
	}
}

// ReleasePending lowers the pending amount, floored at zero.
func (m *Merchant) ReleasePending(amount int64) {
	m.PendingAmount -= amount
	if m.PendingAmount < 0 {
		m.PendingAmount = 0
	}
}

// AddStarRating raises the star rating by a tenth, capped at 5.0.
// The rating is kept at one decimal place.
func (m *Merchant) AddStarRating() {
	m.StarRating += 0.1
	if m.StarRating > MaxStarRating {
		m.StarRating = MaxStarRating
	}
	m.StarRating = float64(int(m.StarRating*10+0.5)) / 10
}
