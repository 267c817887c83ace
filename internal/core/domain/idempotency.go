package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog caches the response of a submission request so a
// retried request replays the original result instead of re-applying
// its ledger effect.
type IdempotencyLog struct {
	Key          string    `json:"key"` // "merchant_id:client_key"
	LinkedID     uuid.UUID `json:"linked_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client-supplied key to one merchant.
func BuildIdempotencyKey(merchantID uuid.UUID, clientKey string) string {
	return merchantID.String() + ":" + clientKey
}
