package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. It is the only
// component that writes Merchant.Balance: every delta goes through
// ApplyInTx, which runs under the merchant row lock and appends exactly
// one ledger entry whose balance_after matches the new balance.
type LedgerServiceImpl struct {
	merchantRepo ports.MerchantRepository
	entryRepo    ports.LedgerEntryRepository
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	merchantRepo ports.MerchantRepository,
	entryRepo ports.LedgerEntryRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		merchantRepo: merchantRepo,
		entryRepo:    entryRepo,
		transactor:   transactor,
		log:          log,
	}
}

// Credit adds funds to a merchant's wallet in its own transaction.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.LedgerRequest) (*domain.LedgerEntry, error) {
	return s.apply(ctx, req, req.Amount)
}

// Debit removes funds from a merchant's wallet in its own transaction.
// It fails with InsufficientFunds when the balance would go negative.
func (s *LedgerServiceImpl) Debit(ctx context.Context, req ports.LedgerRequest) (*domain.LedgerEntry, error) {
	return s.apply(ctx, req, -req.Amount)
}

func (s *LedgerServiceImpl) apply(ctx context.Context, req ports.LedgerRequest, delta int64) (*domain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !domain.ValidEntryType(req.Type) {
		return nil, apperror.ErrInvalidEntryType()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	entry, err := s.ApplyInTx(ctx, dbTx, m, delta, req.Type, req.LinkedID)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("merchant_id", req.MerchantID.String()).
		Str("type", string(req.Type)).
		Int64("amount", delta).
		Int64("balance_after", entry.BalanceAfter).
		Msg("ledger entry applied")

	return entry, nil
}

// ApplyInTx applies a signed delta to a locked merchant: it mutates
// m.Balance, persists the merchant's financial columns and appends the
// ledger entry, all inside the caller's transaction. The check and the
// mutation are indivisible because the row lock is held until commit.
func (s *LedgerServiceImpl) ApplyInTx(ctx context.Context, tx pgx.Tx, m *domain.Merchant, delta int64, entryType domain.EntryType, linkedID string) (*domain.LedgerEntry, error) {
	if delta == 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !domain.ValidEntryType(entryType) {
		return nil, apperror.ErrInvalidEntryType()
	}
	if delta < 0 && m.Balance+delta < 0 {
		return nil, apperror.ErrInsufficientFunds()
	}

	m.Balance += delta

	if err := s.merchantRepo.UpdateFinancials(ctx, tx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant financials: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New(),
		MerchantID:   m.ID,
		LinkedID:     linkedID,
		Amount:       delta,
		BalanceAfter: m.Balance,
		Type:         entryType,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	return entry, nil
}

// GetBalance returns the current balance and pending amount.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, merchantID uuid.UUID) (int64, int64, error) {
	m, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return 0, 0, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if m == nil {
		return 0, 0, apperror.ErrNotFound("merchant")
	}
	return m.Balance, m.PendingAmount, nil
}

// ListEntries returns a filtered, paginated slice of the transaction log.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	entries, total, err := s.entryRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, total, nil
}
