package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"marketplace-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerService owns every balance mutation. Credit and Debit open
// their own transaction; ApplyInTx is the same primitive for workflow
// services that already hold the merchant row lock.
type LedgerService interface {
	Credit(ctx context.Context, req LedgerRequest) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, req LedgerRequest) (*domain.LedgerEntry, error)
	// ApplyInTx applies a signed delta to the locked merchant, persists
	// the merchant's financial columns and appends exactly one ledger
	// entry. Negative deltas fail with InsufficientFunds rather than
	// ever leaving balance < 0.
	ApplyInTx(ctx context.Context, tx pgx.Tx, m *domain.Merchant, delta int64, entryType domain.EntryType, linkedID string) (*domain.LedgerEntry, error)
	GetBalance(ctx context.Context, merchantID uuid.UUID) (int64, int64, error) // balance, pendingAmount
	ListEntries(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
}

// LedgerRequest holds validated input for a standalone credit/debit.
type LedgerRequest struct {
	MerchantID uuid.UUID
	Amount     int64 // must be > 0; Debit negates it
	Type       domain.EntryType
	LinkedID   string
}

// OrderService drives the order state machine.
type OrderService interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*domain.Order, error)
	DispatchBulk(ctx context.Context, reqs []DispatchRequest) ([]domain.Order, []BulkError)
	Pickup(ctx context.Context, orderID, merchantID uuid.UUID) (*domain.Order, error)
	BulkShip(ctx context.Context, merchantID *uuid.UUID) (int64, error)
	ConfirmProfit(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	BulkComplete(ctx context.Context) (int64, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	// SweepExpired cancels unpaid orders whose pickup deadline passed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
}

// DispatchRequest holds validated input for order dispatch.
type DispatchRequest struct {
	MerchantCode   string
	Lines          []DispatchLine
	CompletionDays int
}

// DispatchLine is one product reference in a dispatch request.
type DispatchLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// BulkError reports a single failed item of a bulk operation.
type BulkError struct {
	MerchantCode string `json:"merchant_code"`
	Reason       string `json:"reason"`
}

// RechargeService is the top-up approval pipeline.
type RechargeService interface {
	Submit(ctx context.Context, req SubmitRechargeRequest) (*domain.Recharge, error)
	Review(ctx context.Context, id uuid.UUID, approve bool, reviewer uuid.UUID) (*domain.Recharge, error)
	List(ctx context.Context, params RequestListParams) ([]domain.Recharge, int64, error)
}

// SubmitRechargeRequest holds validated input for a recharge submission.
type SubmitRechargeRequest struct {
	MerchantID     uuid.UUID
	Amount         int64
	Method         string
	Currency       string
	Voucher        string
	IdempotencyKey string
}

// WithdrawalService is the cash-out pipeline with an optimistic hold.
type WithdrawalService interface {
	Submit(ctx context.Context, req SubmitWithdrawalRequest) (*domain.Withdrawal, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer uuid.UUID) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, reviewer uuid.UUID) (*domain.Withdrawal, error)
	List(ctx context.Context, params RequestListParams) ([]domain.Withdrawal, int64, error)
}

// SubmitWithdrawalRequest holds validated input for a withdrawal submission.
type SubmitWithdrawalRequest struct {
	MerchantID     uuid.UUID
	Amount         int64
	Method         domain.WithdrawalMethod
	Currency       string
	AccountName    string
	BankCardNumber string
	BankName       string
	Network        string
	WalletAddress  string
	FundsPassword  string
	IdempotencyKey string
}

// VipService is the tier upgrade pipeline.
type VipService interface {
	Levels(ctx context.Context) ([]domain.VipLevel, error)
	Apply(ctx context.Context, req ApplyVipRequest) (*domain.VipApplication, error)
	Review(ctx context.Context, id uuid.UUID, approve bool, reviewer uuid.UUID) (*domain.VipApplication, error)
	ListApplications(ctx context.Context, params RequestListParams) ([]domain.VipApplication, int64, error)
}

// ApplyVipRequest holds validated input for a VIP upgrade application.
type ApplyVipRequest struct {
	MerchantID     uuid.UUID
	RequestedLevel int
	FundsPassword  string
}

// AttendanceService credits the daily sign-in bonus.
type AttendanceService interface {
	SignIn(ctx context.Context, merchantID uuid.UUID, now time.Time) (*domain.Attendance, error)
}

// FundsPasswordVerifier checks the funds-specific secret, distinct from
// the login credential.
type FundsPasswordVerifier interface {
	Verify(password, hash string) (bool, error)
	Hash(password string) (string, error)
}

// TokenService validates access tokens issued by the external auth
// system; this core never issues sessions itself.
type TokenService interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed token claims.
type TokenClaims struct {
	MerchantID uuid.UUID
	Role       string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}
