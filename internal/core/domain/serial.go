package domain

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newSerial builds a time-ordered serial number: a date prefix for
// operators plus the random tail of a UUIDv7, so serials sort by
// creation time and need no collision retry loop.
func newSerial(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4.
		id = uuid.New()
	}
	tail := binary.BigEndian.Uint64(id[8:])
	return fmt.Sprintf("%s%s%012d", prefix, time.Now().UTC().Format("20060102150405"), tail%1_000_000_000_000)
}

// NewOrderSN returns a new order serial number.
func NewOrderSN() string { return newSerial("") }

// NewRechargeSN returns a new recharge serial number.
func NewRechargeSN() string { return newSerial("RCH") }

// NewWithdrawalSN returns a new withdrawal serial number.
func NewWithdrawalSN() string { return newSerial("WTH") }
