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

// AttendanceServiceImpl implements ports.AttendanceService: one sign-in
// per merchant per UTC day, rewarded through the ledger.
type AttendanceServiceImpl struct {
	attendanceRepo ports.AttendanceRepository
	merchantRepo   ports.MerchantRepository
	ledger         ports.LedgerService
	transactor     ports.DBTransactor
	reward         int64
	log            zerolog.Logger
}

// NewAttendanceService creates a new AttendanceServiceImpl.
func NewAttendanceService(
	attendanceRepo ports.AttendanceRepository,
	merchantRepo ports.MerchantRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	reward int64,
	log zerolog.Logger,
) *AttendanceServiceImpl {
	return &AttendanceServiceImpl{
		attendanceRepo: attendanceRepo,
		merchantRepo:   merchantRepo,
		ledger:         ledger,
		transactor:     transactor,
		reward:         reward,
		log:            log,
	}
}

// SignIn records today's attendance and credits the fixed bonus.
func (s *AttendanceServiceImpl) SignIn(ctx context.Context, merchantID uuid.UUID, now time.Time) (*domain.Attendance, error) {
	now = now.UTC()
	today := now.Format("2006-01-02")

	signed, err := s.attendanceRepo.Exists(ctx, merchantID, today)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check attendance: %w", err))
	}
	if signed {
		return nil, apperror.ErrInvalidState("already signed in today")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	consecutive, err := s.attendanceRepo.Exists(ctx, merchantID, yesterday)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check attendance: %w", err))
	}
	if consecutive {
		m.ConsecutiveSignIns++
	} else {
		m.ConsecutiveSignIns = 1
	}
	m.MonthlySignIns++
	m.LastSignIn = &now
	m.TotalIncome += s.reward

	if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, s.reward, domain.EntrySignInBonus, today); err != nil {
		return nil, err
	}
	if err := s.merchantRepo.UpdateSignIn(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update sign-in counters: %w", err))
	}

	attendance := &domain.Attendance{
		ID:         uuid.New(),
		MerchantID: merchantID,
		SignInDate: today,
		Reward:     s.reward,
		CreatedAt:  now,
	}
	// The unique (merchant, date) index backs the pre-check under races.
	if err := s.attendanceRepo.Create(ctx, dbTx, attendance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create attendance: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("merchant_id", merchantID.String()).
		Int64("reward", s.reward).
		Int("consecutive", m.ConsecutiveSignIns).
		Msg("daily sign-in rewarded")

	return attendance, nil
}
