package domain

import (
	"time"

	"github.com/google/uuid"
)

// vipRateBps is the profit-share rate per VIP tier, in basis points.
// The table is ordered by tier; an out-of-range tier falls back to the
// lowest rate.
var vipRateBps = []int64{1500, 2000, 2500, 2700, 3300, 3800, 4300}

// VipRateBps returns the profit-share rate for a tier, in basis points.
func VipRateBps(level int) int64 {
	if level < 0 || level >= len(vipRateBps) {
		return vipRateBps[0]
	}
	return vipRateBps[level]
}

// EarningsFor computes the merchant payout for a selling price at the
// given VIP tier. Integer basis-point math, truncated toward zero.
func EarningsFor(sellingPrice int64, level int) int64 {
	return sellingPrice * VipRateBps(level) / 10000
}

// VipLevel is a purchasable tier.
type VipLevel struct {
	Level     int       `json:"level"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	RateBps   int64     `json:"rate_bps"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// VipApplicationStatus is the review state of an upgrade request.
type VipApplicationStatus string

const (
	VipApplicationPending  VipApplicationStatus = "pendingReview"
	VipApplicationApproved VipApplicationStatus = "approved"
	VipApplicationRejected VipApplicationStatus = "rejected"
)

// VipApplication is a one-shot tier purchase request. Price is
// snapshotted at submission; the balance is re-validated at approval.
type VipApplication struct {
	ID             uuid.UUID            `json:"id"`
	MerchantID     uuid.UUID            `json:"merchant_id"`
	RequestedLevel int                  `json:"requested_level"`
	Price          int64                `json:"price"`
	Status         VipApplicationStatus `json:"status"`
	ReviewedBy     *uuid.UUID           `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time           `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
