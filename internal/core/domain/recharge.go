package domain

import (
	"time"

	"github.com/google/uuid"
)

// RechargeStatus is the review state of a top-up request.
type RechargeStatus string

const (
	RechargeStatusPending  RechargeStatus = "pending"
	RechargeStatusApproved RechargeStatus = "approved"
	RechargeStatusRejected RechargeStatus = "rejected"
)

// Recharge is a merchant top-up request. Submission has no ledger
// effect; only approval credits the wallet.
type Recharge struct {
	ID           uuid.UUID      `json:"id"`
	RechargeSN   string         `json:"recharge_sn"`
	MerchantID   uuid.UUID      `json:"merchant_id"`
	Amount       int64          `json:"amount"`
	Method       string         `json:"method"`   // e.g. "USDT"
	Currency     string         `json:"currency"` // e.g. "USD"
	Voucher      string         `json:"voucher,omitempty"`
	Status       RechargeStatus `json:"status"`
	ReviewedBy   *uuid.UUID     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
