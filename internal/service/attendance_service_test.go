package service

import (
	"context"
	"testing"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type attendanceTestDeps struct {
	svc            *AttendanceServiceImpl
	attendanceRepo *mocks.MockAttendanceRepository
	merchantRepo   *mocks.MockMerchantRepository
	ledger         *mocks.MockLedgerService
	transactor     *mocks.MockDBTransactor
	ctrl           *gomock.Controller
}

func setupAttendanceService(t *testing.T) *attendanceTestDeps {
	ctrl := gomock.NewController(t)
	d := &attendanceTestDeps{
		attendanceRepo: mocks.NewMockAttendanceRepository(ctrl),
		merchantRepo:   mocks.NewMockMerchantRepository(ctrl),
		ledger:         mocks.NewMockLedgerService(ctrl),
		transactor:     mocks.NewMockDBTransactor(ctrl),
		ctrl:           ctrl,
	}
	d.svc = NewAttendanceService(
		d.attendanceRepo, d.merchantRepo, d.ledger, d.transactor, 1500, zerolog.Nop(),
	)
	return d
}

func TestAttendanceService_SignIn_ConsecutiveDay(t *testing.T) {
	d := setupAttendanceService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	m := &domain.Merchant{
		ID:                 merchantID,
		Balance:            500,
		ConsecutiveSignIns: 4,
		MonthlySignIns:     10,
	}

	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-15").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-14").Return(true, nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(1500), domain.EntrySignInBonus, "2026-03-15").
		Return(&domain.LedgerEntry{Amount: 1500}, nil)
	d.merchantRepo.EXPECT().UpdateSignIn(ctx, tx, m).Return(nil)
	d.attendanceRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	attendance, err := d.svc.SignIn(ctx, merchantID, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", attendance.SignInDate)
	assert.Equal(t, int64(1500), attendance.Reward)

	assert.Equal(t, 5, m.ConsecutiveSignIns)
	assert.Equal(t, 11, m.MonthlySignIns)
	assert.Equal(t, int64(1500), m.TotalIncome)
	require.NotNil(t, m.LastSignIn)
	assert.Equal(t, now, *m.LastSignIn)
}

func TestAttendanceService_SignIn_StreakResets(t *testing.T) {
	d := setupAttendanceService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)

	m := &domain.Merchant{ID: merchantID, ConsecutiveSignIns: 7}

	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-20").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-19").Return(false, nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(1500), domain.EntrySignInBonus, "2026-03-20").
		Return(&domain.LedgerEntry{}, nil)
	d.merchantRepo.EXPECT().UpdateSignIn(ctx, tx, m).Return(nil)
	d.attendanceRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	_, err := d.svc.SignIn(ctx, merchantID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ConsecutiveSignIns)
}

func TestAttendanceService_SignIn_AlreadySignedToday(t *testing.T) {
	d := setupAttendanceService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	now := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)

	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-15").Return(true, nil)

	attendance, err := d.svc.SignIn(ctx, merchantID, now)
	assert.Nil(t, attendance)
	assertAppError(t, err, "STA_001")
}

func TestAttendanceService_SignIn_MerchantNotFound(t *testing.T) {
	d := setupAttendanceService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	d.attendanceRepo.EXPECT().Exists(ctx, merchantID, "2026-03-15").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(nil, nil)

	attendance, err := d.svc.SignIn(ctx, merchantID, now)
	assert.Nil(t, attendance)
	assertAppError(t, err, "RES_001")
}
