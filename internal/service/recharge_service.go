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

const idempotencyTTL = 24 * time.Hour

// RechargeServiceImpl implements ports.RechargeService. Submission is a
// pure record insert; the wallet is only credited at approval.
type RechargeServiceImpl struct {
	rechargeRepo ports.RechargeRepository
	merchantRepo ports.MerchantRepository
	ledger       ports.LedgerService
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewRechargeService creates a new RechargeServiceImpl.
func NewRechargeService(
	rechargeRepo ports.RechargeRepository,
	merchantRepo ports.MerchantRepository,
	ledger ports.LedgerService,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *RechargeServiceImpl {
	return &RechargeServiceImpl{
		rechargeRepo: rechargeRepo,
		merchantRepo: merchantRepo,
		ledger:       ledger,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		log:          log,
	}
}

// Submit records a top-up request awaiting review. A client idempotency
// key makes retried submissions replay the original record.
func (s *RechargeServiceImpl) Submit(ctx context.Context, req ports.SubmitRechargeRequest) (*domain.Recharge, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	m, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.MerchantID, req.IdempotencyKey)
		if cached, err := s.replayRecharge(ctx, idempKey); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	method := req.Method
	if method == "" {
		method = "USDT"
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	recharge := &domain.Recharge{
		ID:         uuid.New(),
		RechargeSN: domain.NewRechargeSN(),
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Method:     method,
		Currency:   currency,
		Voucher:    req.Voucher,
		Status:     domain.RechargeStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.rechargeRepo.Create(ctx, dbTx, recharge); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create recharge: %w", err))
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(recharge)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:          idempKey,
			LinkedID:     recharge.ID,
			ResponseJSON: respJSON,
			CreatedAt:    recharge.CreatedAt,
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit Redis cache is best-effort.
	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("recharge_sn", recharge.RechargeSN).
		Str("merchant_id", req.MerchantID.String()).
		Int64("amount", req.Amount).
		Msg("recharge submitted")

	return recharge, nil
}

// Review approves or rejects a pending request. Approval is the only
// point that credits the wallet; a second review is rejected.
func (s *RechargeServiceImpl) Review(ctx context.Context, id uuid.UUID, approve bool, reviewer uuid.UUID) (*domain.Recharge, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	recharge, err := s.rechargeRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock recharge: %w", err))
	}
	if recharge == nil {
		return nil, apperror.ErrNotFound("recharge")
	}
	if recharge.Status != domain.RechargeStatusPending {
		return nil, apperror.ErrAlreadyReviewed()
	}

	now := time.Now().UTC()
	status := domain.RechargeStatusRejected
	if approve {
		status = domain.RechargeStatusApproved

		m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, recharge.MerchantID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
		}
		if m == nil {
			return nil, apperror.ErrNotFound("merchant")
		}

		m.TotalIncome += recharge.Amount
		if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, recharge.Amount, domain.EntryRecharge, recharge.RechargeSN); err != nil {
			return nil, err
		}
	}

	if err := s.rechargeRepo.SetReviewed(ctx, dbTx, recharge.ID, status, reviewer, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set reviewed: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	recharge.Status = status
	recharge.ReviewedBy = &reviewer
	recharge.ReviewedAt = &now

	s.log.Info().
		Str("recharge_sn", recharge.RechargeSN).
		Bool("approved", approve).
		Msg("recharge reviewed")

	return recharge, nil
}

// List returns a filtered, paginated slice of recharge requests.
func (s *RechargeServiceImpl) List(ctx context.Context, params ports.RequestListParams) ([]domain.Recharge, int64, error) {
	normalizeRequestParams(&params)
	items, total, err := s.rechargeRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list recharges: %w", err))
	}
	return items, total, nil
}

func (s *RechargeServiceImpl) replayRecharge(ctx context.Context, idempKey string) (*domain.Recharge, error) {
	// Layer 1: Redis fast path.
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached == nil {
		// Layer 2: DB log.
		idempLog, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if idempLog == nil {
			return nil, nil
		}
		cached = idempLog.ResponseJSON
	}

	recharge := &domain.Recharge{}
	if err := json.Unmarshal(cached, recharge); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached recharge: %w", err))
	}
	return recharge, nil
}

func normalizeRequestParams(params *ports.RequestListParams) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 10
	}
}
