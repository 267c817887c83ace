package service

import (
	"context"
	"testing"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/internal/core/ports/mocks"
	"marketplace-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

type ledgerTestDeps struct {
	svc          *LedgerServiceImpl
	merchantRepo *mocks.MockMerchantRepository
	entryRepo    *mocks.MockLedgerEntryRepository
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		merchantRepo: mocks.NewMockMerchantRepository(ctrl),
		entryRepo:    mocks.NewMockLedgerEntryRepository(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewLedgerService(d.merchantRepo, d.entryRepo, d.transactor, zerolog.Nop())
	return d
}

func TestLedgerService_Credit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	m := &domain.Merchant{ID: merchantID, Balance: 1000}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.merchantRepo.EXPECT().UpdateFinancials(ctx, tx, m).Return(nil)
	d.entryRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.Credit(ctx, ports.LedgerRequest{
		MerchantID: merchantID,
		Amount:     500,
		Type:       domain.EntryRecharge,
		LinkedID:   "RCH-001",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(500), entry.Amount)
	assert.Equal(t, int64(1500), entry.BalanceAfter)
	assert.Equal(t, int64(1500), m.Balance)
	assert.Equal(t, domain.EntryRecharge, entry.Type)
	assert.Equal(t, "RCH-001", entry.LinkedID)
}

func TestLedgerService_Debit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	m := &domain.Merchant{ID: merchantID, Balance: 500}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.merchantRepo.EXPECT().UpdateFinancials(ctx, tx, m).Return(nil)
	d.entryRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.Debit(ctx, ports.LedgerRequest{
		MerchantID: merchantID,
		Amount:     500,
		Type:       domain.EntryWithdrawal,
		LinkedID:   "WTH-001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-500), entry.Amount)
	assert.Equal(t, int64(0), entry.BalanceAfter)
	assert.Equal(t, int64(0), m.Balance)
}

func TestLedgerService_Debit_InsufficientFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	m := &domain.Merchant{ID: merchantID, Balance: 100}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)

	entry, err := d.svc.Debit(ctx, ports.LedgerRequest{
		MerchantID: merchantID,
		Amount:     500,
		Type:       domain.EntryWithdrawal,
	})
	assert.Nil(t, entry)
	assertAppError(t, err, "FND_001")
	// The failed debit must not touch the in-memory balance either.
	assert.Equal(t, int64(100), m.Balance)
}

func TestLedgerService_Credit_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	entry, err := d.svc.Credit(context.Background(), ports.LedgerRequest{
		MerchantID: uuid.New(),
		Amount:     0,
		Type:       domain.EntryRecharge,
	})
	assert.Nil(t, entry)
	assertAppError(t, err, "FND_002")
}

func TestLedgerService_Credit_InvalidEntryType(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	entry, err := d.svc.Credit(context.Background(), ports.LedgerRequest{
		MerchantID: uuid.New(),
		Amount:     100,
		Type:       domain.EntryType("bogus"),
	})
	assert.Nil(t, entry)
	assertAppError(t, err, "FND_003")
}

func TestLedgerService_Credit_MerchantNotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(nil, nil)

	entry, err := d.svc.Credit(ctx, ports.LedgerRequest{
		MerchantID: merchantID,
		Amount:     100,
		Type:       domain.EntryRecharge,
	})
	assert.Nil(t, entry)
	assertAppError(t, err, "RES_001")
}

func TestLedgerService_ApplyInTx_ZeroDelta(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	entry, err := d.svc.ApplyInTx(context.Background(), &mockTx{}, &domain.Merchant{}, 0, domain.EntryAdminAdd, "")
	assert.Nil(t, entry)
	assertAppError(t, err, "FND_002")
}

func TestLedgerService_ApplyInTx_BalanceAfterMatchesRunningSum(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	m := &domain.Merchant{ID: uuid.New(), Balance: 0}

	d.merchantRepo.EXPECT().UpdateFinancials(ctx, tx, m).Return(nil).Times(3)
	d.entryRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(3)

	deltas := []int64{1000, -300, 250}
	var sum int64
	for _, delta := range deltas {
		entryType := domain.EntryAdminAdd
		if delta < 0 {
			entryType = domain.EntryAdminDeduct
		}
		entry, err := d.svc.ApplyInTx(ctx, tx, m, delta, entryType, "adj")
		require.NoError(t, err)
		sum += delta
		assert.Equal(t, sum, entry.BalanceAfter)
		assert.Equal(t, sum, m.Balance)
	}
}

func TestLedgerService_GetBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.merchantRepo.EXPECT().GetByID(ctx, merchantID).Return(&domain.Merchant{
		ID:            merchantID,
		Balance:       7500,
		PendingAmount: 2000,
	}, nil)

	balance, pending, err := d.svc.GetBalance(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), balance)
	assert.Equal(t, int64(2000), pending)
}

func TestLedgerService_GetBalance_NotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.merchantRepo.EXPECT().GetByID(ctx, merchantID).Return(nil, nil)

	_, _, err := d.svc.GetBalance(ctx, merchantID)
	assertAppError(t, err, "RES_001")
}

func TestLedgerService_ListEntries_NormalizesPagination(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.entryRepo.EXPECT().
		List(ctx, ports.LedgerListParams{MerchantID: merchantID, Page: 1, PageSize: 20}).
		Return([]domain.LedgerEntry{}, int64(0), nil)

	_, _, err := d.svc.ListEntries(ctx, ports.LedgerListParams{MerchantID: merchantID, Page: 0, PageSize: 500})
	require.NoError(t, err)
}
