package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"marketplace-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository defines persistence operations for merchants.
// Methods accepting pgx.Tx run inside transaction blocks; GetByIDForUpdate
// takes the merchant row lock that serializes all ledger mutations for
// one merchant while letting other merchants proceed in parallel.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByCode(ctx context.Context, code string) (*domain.Merchant, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Merchant, error)
	// UpdateFinancials persists balance, pending amount, accumulators,
	// ratings and tier. Callers must hold the row lock.
	UpdateFinancials(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error
	UpdateSignIn(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error
}

// LedgerEntryRepository persists the append-only transaction log.
type LedgerEntryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	List(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	// SumAmounts replays a merchant's entries; used for reconciliation.
	SumAmounts(ctx context.Context, merchantID uuid.UUID) (int64, error)
}

// LedgerListParams holds filter + pagination for listing ledger entries.
type LedgerListParams struct {
	MerchantID uuid.UUID
	Type       *domain.EntryType
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)
	// UpdateStatusIf transitions id from one status to another and
	// reports whether the row matched; this is the atomic guard against
	// double pickup and sweep/pickup races.
	UpdateStatusIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error)
	MarkPickedUp(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
	// BulkShip moves every pendingShipment order (optionally one
	// merchant's) to shipped, returning the number of rows changed.
	BulkShip(ctx context.Context, merchantID *uuid.UUID) (int64, error)
	ListShipped(ctx context.Context, limit int) ([]domain.Order, error)
	// CancelExpired is the sweeper's single conditional update: cancel
	// where status is pendingPayment and the deadline passed before now.
	CancelExpired(ctx context.Context, now time.Time, reason string) (int64, error)
	CountCompleted(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (total int64, confirmed int64, err error)
	List(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
}

// OrderListParams holds filter + pagination for listing orders.
type OrderListParams struct {
	MerchantID *uuid.UUID
	Status     *domain.OrderStatus
	OrderSN    string
	Page       int
	PageSize   int
}

// ProductRepository reads catalog items for dispatch snapshots.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
}

// RechargeRepository defines persistence for top-up requests.
type RechargeRepository interface {
	Create(ctx context.Context, tx pgx.Tx, r *domain.Recharge) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Recharge, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Recharge, error)
	SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RechargeStatus, reviewer uuid.UUID, at time.Time) error
	List(ctx context.Context, params RequestListParams) ([]domain.Recharge, int64, error)
}

// WithdrawalRepository defines persistence for withdrawal requests.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason string, reviewer uuid.UUID, at time.Time) error
	List(ctx context.Context, params RequestListParams) ([]domain.Withdrawal, int64, error)
}

// RequestListParams holds filter + pagination for workflow requests.
type RequestListParams struct {
	MerchantID *uuid.UUID
	Status     string
	Page       int
	PageSize   int
}

// VipRepository defines persistence for tiers and upgrade applications.
type VipRepository interface {
	ListLevels(ctx context.Context) ([]domain.VipLevel, error)
	GetLevel(ctx context.Context, level int) (*domain.VipLevel, error)
	CreateApplication(ctx context.Context, a *domain.VipApplication) error
	GetApplicationByID(ctx context.Context, id uuid.UUID) (*domain.VipApplication, error)
	GetApplicationByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VipApplication, error)
	HasPendingApplication(ctx context.Context, merchantID uuid.UUID) (bool, error)
	SetApplicationReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.VipApplicationStatus, reviewer uuid.UUID, at time.Time) error
	ListApplications(ctx context.Context, params RequestListParams) ([]domain.VipApplication, int64, error)
}

// AttendanceRepository defines persistence for daily sign-ins.
type AttendanceRepository interface {
	Create(ctx context.Context, tx pgx.Tx, a *domain.Attendance) error
	Exists(ctx context.Context, merchantID uuid.UUID, signInDate string) (bool, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB layer).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
