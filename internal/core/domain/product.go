package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item. Dispatch copies its prices into the order
// so catalog edits never change placed orders.
type Product struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	CostPrice  int64     `json:"cost_price"`
	SalesPrice int64     `json:"sales_price"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
