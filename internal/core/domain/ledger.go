package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType is the closed set of money movements the ledger records.
type EntryType string

const (
	EntryOrderPayment   EntryType = "orderPayment"   // merchant paid for an order (debit)
	EntryOrderCompleted EntryType = "orderCompleted" // profit released after completion (credit)
	EntryRecharge       EntryType = "recharge"       // approved wallet top-up (credit)
	EntryWithdrawal     EntryType = "withdrawal"     // funds held at withdrawal submission (debit)
	EntrySignInBonus    EntryType = "signInBonus"    // daily sign-in reward (credit)
	EntryVipUpgrade     EntryType = "vipUpgrade"     // VIP tier purchase (debit)
	EntryAdminAdd       EntryType = "adminAdd"       // administrative credit, incl. compensations
	EntryAdminDeduct    EntryType = "adminDeduct"    // administrative debit
)

// ValidEntryType reports whether t belongs to the closed type set.
func ValidEntryType(t EntryType) bool {
	switch t {
	case EntryOrderPayment, EntryOrderCompleted, EntryRecharge, EntryWithdrawal,
		EntrySignInBonus, EntryVipUpgrade, EntryAdminAdd, EntryAdminDeduct:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of one balance delta. Replaying a
// merchant's entries in creation order and summing Amount yields the
// merchant's current balance; BalanceAfter snapshots that running sum.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	MerchantID   uuid.UUID `json:"merchant_id"`
	LinkedID     string    `json:"linked_id"` // order / recharge / withdrawal serial
	Amount       int64     `json:"amount"`    // signed: positive credit, negative debit
	BalanceAfter int64     `json:"balance_after"`
	Type         EntryType `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
}
