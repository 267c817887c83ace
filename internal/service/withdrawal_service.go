package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WithdrawalServiceImpl implements ports.WithdrawalService. Submission
// debits the wallet immediately (optimistic hold), so two concurrent
// withdrawals can never overcommit a balance; rejection compensates with
// an equal credit.
type WithdrawalServiceImpl struct {
	withdrawalRepo ports.WithdrawalRepository
	merchantRepo   ports.MerchantRepository
	ledger         ports.LedgerService
	verifier       ports.FundsPasswordVerifier
	idempRepo      ports.IdempotencyRepository
	idempCache     ports.IdempotencyCache
	transactor     ports.DBTransactor
	log            zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	withdrawalRepo ports.WithdrawalRepository,
	merchantRepo ports.MerchantRepository,
	ledger ports.LedgerService,
	verifier ports.FundsPasswordVerifier,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		withdrawalRepo: withdrawalRepo,
		merchantRepo:   merchantRepo,
		ledger:         ledger,
		verifier:       verifier,
		idempRepo:      idempRepo,
		idempCache:     idempCache,
		transactor:     transactor,
		log:            log,
	}
}

// Submit holds the requested amount: the debit, the request row and the
// ledger entry land in one transaction under the merchant row lock.
func (s *WithdrawalServiceImpl) Submit(ctx context.Context, req ports.SubmitWithdrawalRequest) (*domain.Withdrawal, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Method != domain.WithdrawalMethodBankCard && req.Method != domain.WithdrawalMethodBlockchain {
		return nil, apperror.Validation("unknown withdrawal method")
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.MerchantID, req.IdempotencyKey)
		if cached, err := s.replayWithdrawal(ctx, idempKey); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
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
	if m.IsWithdrawalForbidden {
		return nil, apperror.ErrWithdrawalForbidden()
	}

	// Funds password is a secondary credential, distinct from login.
	ok, err := s.verifier.Verify(req.FundsPassword, m.FundsPasswordHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify funds password: %w", err))
	}
	if !ok {
		return nil, apperror.ErrWrongFundsPassword()
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	withdrawal := &domain.Withdrawal{
		ID:             uuid.New(),
		WithdrawalSN:   domain.NewWithdrawalSN(),
		MerchantID:     req.MerchantID,
		Amount:         req.Amount,
		Method:         req.Method,
		Currency:       currency,
		AccountName:    req.AccountName,
		BankCardNumber: req.BankCardNumber,
		BankName:       req.BankName,
		Network:        req.Network,
		WalletAddress:  req.WalletAddress,
		Status:         domain.WithdrawalStatusUnderReview,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, -req.Amount, domain.EntryWithdrawal, withdrawal.WithdrawalSN); err != nil {
		return nil, err
	}

	if err := s.withdrawalRepo.Create(ctx, dbTx, withdrawal); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(withdrawal)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:          idempKey,
			LinkedID:     withdrawal.ID,
			ResponseJSON: respJSON,
			CreatedAt:    withdrawal.CreatedAt,
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("withdrawal_sn", withdrawal.WithdrawalSN).
		Str("merchant_id", req.MerchantID.String()).
		Int64("amount", req.Amount).
		Msg("withdrawal submitted, funds held")

	return withdrawal, nil
}

// Approve marks the request withdrawn. The funds already left the
// balance at submission, so approval writes no ledger entry.
func (s *WithdrawalServiceImpl) Approve(ctx context.Context, id uuid.UUID, reviewer uuid.UUID) (*domain.Withdrawal, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	withdrawal, err := s.withdrawalRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if withdrawal == nil {
		return nil, apperror.ErrNotFound("withdrawal")
	}
	if withdrawal.Status != domain.WithdrawalStatusUnderReview {
		return nil, apperror.ErrAlreadyReviewed()
	}

	now := time.Now().UTC()
	if err := s.withdrawalRepo.SetReviewed(ctx, dbTx, withdrawal.ID, domain.WithdrawalStatusWithdrawn, "", reviewer, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set reviewed: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	withdrawal.Status = domain.WithdrawalStatusWithdrawn
	withdrawal.ReviewedBy = &reviewer
	withdrawal.ReviewedAt = &now

	s.log.Info().Str("withdrawal_sn", withdrawal.WithdrawalSN).Msg("withdrawal approved")

	return withdrawal, nil
}

// Cancel rejects an under-review request and returns the held funds
// with a compensating credit equal to the original debit.
func (s *WithdrawalServiceImpl) Cancel(ctx context.Context, id uuid.UUID, reason string, reviewer uuid.UUID) (*domain.Withdrawal, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	withdrawal, err := s.withdrawalRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if withdrawal == nil {
		return nil, apperror.ErrNotFound("withdrawal")
	}
	if withdrawal.Status != domain.WithdrawalStatusUnderReview {
		return nil, apperror.ErrAlreadyReviewed()
	}

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, withdrawal.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, withdrawal.Amount, domain.EntryAdminAdd, withdrawal.WithdrawalSN); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "Cancelled by admin"
	}
	now := time.Now().UTC()
	if err := s.withdrawalRepo.SetReviewed(ctx, dbTx, withdrawal.ID, domain.WithdrawalStatusRejected, reason, reviewer, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set reviewed: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	withdrawal.Status = domain.WithdrawalStatusRejected
	withdrawal.RejectionReason = reason
	withdrawal.ReviewedBy = &reviewer
	withdrawal.ReviewedAt = &now

	s.log.Info().
		Str("withdrawal_sn", withdrawal.WithdrawalSN).
		Int64("amount", withdrawal.Amount).
		Msg("withdrawal cancelled, funds returned")

	return withdrawal, nil
}

// List returns a filtered, paginated slice of withdrawal requests.
func (s *WithdrawalServiceImpl) List(ctx context.Context, params ports.RequestListParams) ([]domain.Withdrawal, int64, error) {
	normalizeRequestParams(&params)
	items, total, err := s.withdrawalRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list withdrawals: %w", err))
	}
	return items, total, nil
}

func (s *WithdrawalServiceImpl) replayWithdrawal(ctx context.Context, idempKey string) (*domain.Withdrawal, error) {
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached == nil {
		idempLog, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if idempLog == nil {
			return nil, nil
		}
		cached = idempLog.ResponseJSON
	}

	withdrawal := &domain.Withdrawal{}
	if err := json.Unmarshal(cached, withdrawal); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached withdrawal: %w", err))
	}
	return withdrawal, nil
}
