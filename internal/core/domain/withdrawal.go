package domain

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus is the review state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusUnderReview WithdrawalStatus = "underReview"
	WithdrawalStatusWithdrawn   WithdrawalStatus = "withdrawn"
	WithdrawalStatusRejected    WithdrawalStatus = "rejected"
)

// WithdrawalMethod is the payout channel.
type WithdrawalMethod string

const (
	WithdrawalMethodBankCard   WithdrawalMethod = "bankCard"
	WithdrawalMethodBlockchain WithdrawalMethod = "blockchain"
)

// Withdrawal is a cash-out request. The wallet is debited at submission
// (optimistic hold); rejection issues a compensating credit, approval
// has no further ledger effect.
type Withdrawal struct {
	ID           uuid.UUID        `json:"id"`
	WithdrawalSN string           `json:"withdrawal_sn"`
	MerchantID   uuid.UUID        `json:"merchant_id"`
	Amount       int64            `json:"amount"`
	Method       WithdrawalMethod `json:"method"`
	Currency     string           `json:"currency"`

	// Bank card payout details.
	AccountName    string `json:"account_name,omitempty"`
	BankCardNumber string `json:"bank_card_number,omitempty"`
	BankName       string `json:"bank_name,omitempty"`

	// Blockchain payout details.
	Network       string `json:"network,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`

	Status          WithdrawalStatus `json:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID       `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
