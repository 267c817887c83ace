package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VipServiceImpl implements ports.VipService. Balance is checked at
// submission for early feedback, but the authoritative check runs again
// at approval under the merchant row lock, since the balance may have
// moved in between.
type VipServiceImpl struct {
	vipRepo      ports.VipRepository
	merchantRepo ports.MerchantRepository
	ledger       ports.LedgerService
	verifier     ports.FundsPasswordVerifier
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewVipService creates a new VipServiceImpl.
func NewVipService(
	vipRepo ports.VipRepository,
	merchantRepo ports.MerchantRepository,
	ledger ports.LedgerService,
	verifier ports.FundsPasswordVerifier,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *VipServiceImpl {
	return &VipServiceImpl{
		vipRepo:      vipRepo,
		merchantRepo: merchantRepo,
		ledger:       ledger,
		verifier:     verifier,
		transactor:   transactor,
		log:          log,
	}
}

// Levels lists the purchasable tiers.
func (s *VipServiceImpl) Levels(ctx context.Context) ([]domain.VipLevel, error) {
	levels, err := s.vipRepo.ListLevels(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list vip levels: %w", err))
	}
	return levels, nil
}

// Apply submits an upgrade request with the tier price snapshotted now.
func (s *VipServiceImpl) Apply(ctx context.Context, req ports.ApplyVipRequest) (*domain.VipApplication, error) {
	m, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	ok, err := s.verifier.Verify(req.FundsPassword, m.FundsPasswordHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify funds password: %w", err))
	}
	if !ok {
		return nil, apperror.ErrWrongFundsPassword()
	}

	if req.RequestedLevel <= m.VipLevel {
		return nil, apperror.Validation("requested tier must be greater than current tier")
	}

	level, err := s.vipRepo.GetLevel(ctx, req.RequestedLevel)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vip level: %w", err))
	}
	if level == nil || !level.Active {
		return nil, apperror.ErrNotFound("vip level")
	}

	if m.Balance < level.Price {
		return nil, apperror.ErrInsufficientFunds()
	}

	pending, err := s.vipRepo.HasPendingApplication(ctx, m.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check pending application: %w", err))
	}
	if pending {
		return nil, apperror.ErrInvalidState("a VIP application is already pending")
	}

	app := &domain.VipApplication{
		ID:             uuid.New(),
		MerchantID:     m.ID,
		RequestedLevel: req.RequestedLevel,
		Price:          level.Price,
		Status:         domain.VipApplicationPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.vipRepo.CreateApplication(ctx, app); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create application: %w", err))
	}

	s.log.Info().
		Str("merchant_id", m.ID.String()).
		Int("requested_level", req.RequestedLevel).
		Int64("price", level.Price).
		Msg("vip application submitted")

	return app, nil
}

// Review approves or rejects a pending application. Approval re-checks
// the balance under the row lock and fails without side effects when
// the funds no longer cover the snapshotted price; the application then
// stays pending. Rejection never touches the ledger.
func (s *VipServiceImpl) Review(ctx context.Context, id uuid.UUID, approve bool, reviewer uuid.UUID) (*domain.VipApplication, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	app, err := s.vipRepo.GetApplicationByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock application: %w", err))
	}
	if app == nil {
		return nil, apperror.ErrNotFound("vip application")
	}
	if app.Status != domain.VipApplicationPending {
		return nil, apperror.ErrAlreadyReviewed()
	}

	now := time.Now().UTC()
	status := domain.VipApplicationRejected
	if approve {
		status = domain.VipApplicationApproved

		m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, app.MerchantID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
		}
		if m == nil {
			return nil, apperror.ErrNotFound("merchant")
		}

		// Authoritative balance check; the rollback leaves the
		// application pending when it fails.
		if m.Balance < app.Price {
			return nil, apperror.ErrInsufficientFunds()
		}

		m.VipLevel = app.RequestedLevel
		if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, -app.Price, domain.EntryVipUpgrade, app.ID.String()); err != nil {
			return nil, err
		}
	}

	if err := s.vipRepo.SetApplicationReviewed(ctx, dbTx, app.ID, status, reviewer, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set reviewed: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	app.Status = status
	app.ReviewedBy = &reviewer
	app.ReviewedAt = &now

	s.log.Info().
		Str("application_id", app.ID.String()).
		Bool("approved", approve).
		Msg("vip application reviewed")

	return app, nil
}

// ListApplications returns a filtered, paginated slice of applications.
func (s *VipServiceImpl) ListApplications(ctx context.Context, params ports.RequestListParams) ([]domain.VipApplication, int64, error) {
	normalizeRequestParams(&params)
	items, total, err := s.vipRepo.ListApplications(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list applications: %w", err))
	}
	return items, total, nil
}
