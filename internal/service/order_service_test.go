package service

import (
	"context"
	"testing"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/internal/core/ports/mocks"
	"marketplace-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type orderTestDeps struct {
	svc          *OrderServiceImpl
	orderRepo    *mocks.MockOrderRepository
	merchantRepo *mocks.MockMerchantRepository
	productRepo  *mocks.MockProductRepository
	ledger       *mocks.MockLedgerService
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupOrderService(t *testing.T) *orderTestDeps {
	ctrl := gomock.NewController(t)
	d := &orderTestDeps{
		orderRepo:    mocks.NewMockOrderRepository(ctrl),
		merchantRepo: mocks.NewMockMerchantRepository(ctrl),
		productRepo:  mocks.NewMockProductRepository(ctrl),
		ledger:       mocks.NewMockLedgerService(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewOrderService(
		d.orderRepo, d.merchantRepo, d.productRepo, d.ledger,
		d.transactor, 3, zerolog.Nop(),
	)
	return d
}

// ==================== Dispatch Tests ====================

func TestOrderService_Dispatch_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()
	tx := &mockTx{}

	d.merchantRepo.EXPECT().GetByCode(ctx, "M-1001").Return(&domain.Merchant{
		ID:           merchantID,
		MerchantCode: "M-1001",
		VipLevel:     2, // 2500 bps
		Status:       domain.MerchantStatusApproved,
	}, nil)
	d.productRepo.EXPECT().GetByID(ctx, productA).Return(&domain.Product{
		ID: productA, Title: "Widget", CostPrice: 100, SalesPrice: 150,
	}, nil)
	d.productRepo.EXPECT().GetByID(ctx, productB).Return(&domain.Product{
		ID: productB, Title: "Gadget", CostPrice: 50, SalesPrice: 80,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	order, err := d.svc.Dispatch(ctx, ports.DispatchRequest{
		MerchantCode: "M-1001",
		Lines: []ports.DispatchLine{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, merchantID, order.MerchantID)
	assert.Equal(t, domain.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, int64(250), order.TotalCost)     // 2*100 + 1*50
	assert.Equal(t, int64(380), order.SellingPrice)  // 2*150 + 1*80
	assert.Equal(t, int64(95), order.Earnings)       // 380 * 2500 / 10000
	assert.Equal(t, 3, order.CompletionDays)         // service default
	assert.Len(t, order.Items, 2)
	assert.NotEmpty(t, order.OrderSN)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 3), order.PickupDeadline, time.Minute)

	// Line items snapshot catalog prices at dispatch.
	assert.Equal(t, "Widget", order.Items[0].Title)
	assert.Equal(t, int64(100), order.Items[0].CostPrice)
	assert.Equal(t, int64(150), order.Items[0].SalesPrice)
}

func TestOrderService_Dispatch_NoLines(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	order, err := d.svc.Dispatch(context.Background(), ports.DispatchRequest{MerchantCode: "M-1001"})
	assert.Nil(t, order)
	assertAppError(t, err, "VAL_001")
}

func TestOrderService_Dispatch_MerchantNotApproved(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.merchantRepo.EXPECT().GetByCode(ctx, "M-1001").Return(&domain.Merchant{
		ID:     uuid.New(),
		Status: domain.MerchantStatusFrozen,
	}, nil)

	order, err := d.svc.Dispatch(ctx, ports.DispatchRequest{
		MerchantCode: "M-1001",
		Lines:        []ports.DispatchLine{{ProductID: uuid.New(), Quantity: 1}},
	})
	assert.Nil(t, order)
	assertAppError(t, err, "STA_001")
}

func TestOrderService_Dispatch_ProductNotFound(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	productID := uuid.New()

	d.merchantRepo.EXPECT().GetByCode(ctx, "M-1001").Return(&domain.Merchant{
		ID: uuid.New(), Status: domain.MerchantStatusApproved,
	}, nil)
	d.productRepo.EXPECT().GetByID(ctx, productID).Return(nil, nil)

	order, err := d.svc.Dispatch(ctx, ports.DispatchRequest{
		MerchantCode: "M-1001",
		Lines:        []ports.DispatchLine{{ProductID: productID, Quantity: 1}},
	})
	assert.Nil(t, order)
	assertAppError(t, err, "RES_001")
}

func TestOrderService_DispatchBulk_CollectsPerItemErrors(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	productID := uuid.New()
	tx := &mockTx{}

	d.merchantRepo.EXPECT().GetByCode(ctx, "M-GOOD").Return(&domain.Merchant{
		ID: uuid.New(), Status: domain.MerchantStatusApproved,
	}, nil)
	d.productRepo.EXPECT().GetByID(ctx, productID).Return(&domain.Product{
		ID: productID, CostPrice: 10, SalesPrice: 20,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	d.merchantRepo.EXPECT().GetByCode(ctx, "M-MISSING").Return(nil, nil)

	reqs := []ports.DispatchRequest{
		{MerchantCode: "M-GOOD", Lines: []ports.DispatchLine{{ProductID: productID, Quantity: 1}}},
		{MerchantCode: "M-MISSING", Lines: []ports.DispatchLine{{ProductID: productID, Quantity: 1}}},
	}
	orders, errs := d.svc.DispatchBulk(ctx, reqs)
	assert.Len(t, orders, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "M-MISSING", errs[0].MerchantCode)
}

// ==================== Pickup Tests ====================

func TestOrderService_Pickup_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:           orderID,
		OrderSN:      "SN-1",
		MerchantID:   merchantID,
		TotalCost:    250,
		SellingPrice: 380,
		Status:       domain.OrderStatusPendingPayment,
	}
	m := &domain.Merchant{ID: merchantID, Balance: 1000}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(-250), domain.EntryOrderPayment, "SN-1").
		Return(&domain.LedgerEntry{Amount: -250}, nil)
	d.orderRepo.EXPECT().MarkPickedUp(ctx, tx, orderID, gomock.Any()).Return(true, nil)

	got, err := d.svc.Pickup(ctx, orderID, merchantID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingShipment, got.Status)
	require.NotNil(t, got.PickedUpAt)
	// The selling price moves to pending while profit is unconfirmed.
	assert.Equal(t, int64(380), m.PendingAmount)
}

func TestOrderService_Pickup_NotYours(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(&domain.Order{
		ID:         orderID,
		MerchantID: uuid.New(),
		Status:     domain.OrderStatusPendingPayment,
	}, nil)

	got, err := d.svc.Pickup(ctx, orderID, uuid.New())
	assert.Nil(t, got)
	assertAppError(t, err, "ACC_002")
}

func TestOrderService_Pickup_WrongState(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(&domain.Order{
		ID:         orderID,
		MerchantID: merchantID,
		Status:     domain.OrderStatusShipped,
	}, nil)

	got, err := d.svc.Pickup(ctx, orderID, merchantID)
	assert.Nil(t, got)
	assertAppError(t, err, "STA_001")
}

func TestOrderService_Pickup_InsufficientFunds(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:           orderID,
		OrderSN:      "SN-2",
		MerchantID:   merchantID,
		TotalCost:    5000,
		SellingPrice: 8000,
		Status:       domain.OrderStatusPendingPayment,
	}
	m := &domain.Merchant{ID: merchantID, Balance: 100}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(-5000), domain.EntryOrderPayment, "SN-2").
		Return(nil, apperror.ErrInsufficientFunds())

	got, err := d.svc.Pickup(ctx, orderID, merchantID)
	assert.Nil(t, got)
	assertAppError(t, err, "FND_001")
}

// ==================== ConfirmProfit Tests ====================

func TestOrderService_ConfirmProfit_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:             orderID,
		OrderSN:        "SN-3",
		MerchantID:     merchantID,
		SellingPrice:   380,
		Earnings:       95,
		Status:         domain.OrderStatusShipped,
		PickupDeadline: time.Now().UTC().Add(24 * time.Hour), // not overdue
	}
	m := &domain.Merchant{
		ID:            merchantID,
		Balance:       750,
		PendingAmount: 380,
		StarRating:    4.5,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.orderRepo.EXPECT().CountCompleted(ctx, tx, merchantID).Return(int64(4), int64(2), nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(95), domain.EntryOrderCompleted, "SN-3").
		Return(&domain.LedgerEntry{Amount: 95}, nil)
	d.orderRepo.EXPECT().MarkCompleted(ctx, tx, orderID, gomock.Any()).Return(nil)

	got, err := d.svc.ConfirmProfit(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
	assert.True(t, got.ProfitConfirmed)
	require.NotNil(t, got.CompletedAt)

	assert.Equal(t, int64(0), m.PendingAmount)
	assert.Equal(t, int64(95), m.TotalProfit)
	assert.Equal(t, int64(95), m.TotalIncome)
	assert.InDelta(t, 4.6, m.StarRating, 0.001)
	// 4 prior terminal orders, 2 confirmed; this one makes 5 and 3.
	assert.Equal(t, 60, m.PositiveRatingRate)
}

func TestOrderService_ConfirmProfit_AlreadyConfirmed(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(&domain.Order{
		ID:              orderID,
		Status:          domain.OrderStatusCompleted,
		ProfitConfirmed: true,
	}, nil)

	got, err := d.svc.ConfirmProfit(ctx, orderID)
	assert.Nil(t, got)
	assertAppError(t, err, "STA_002")
}

func TestOrderService_ConfirmProfit_NotShipped(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(&domain.Order{
		ID:     orderID,
		Status: domain.OrderStatusPendingShipment,
	}, nil)

	got, err := d.svc.ConfirmProfit(ctx, orderID)
	assert.Nil(t, got)
	assertAppError(t, err, "STA_001")
}

func TestOrderService_ConfirmProfit_OverdueSkipsStarBump(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:             orderID,
		OrderSN:        "SN-4",
		MerchantID:     merchantID,
		SellingPrice:   100,
		Earnings:       15,
		Status:         domain.OrderStatusShipped,
		PickupDeadline: time.Now().UTC().Add(-time.Hour), // overdue
	}
	m := &domain.Merchant{ID: merchantID, PendingAmount: 100, StarRating: 4.0}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.orderRepo.EXPECT().CountCompleted(ctx, tx, merchantID).Return(int64(0), int64(0), nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(15), domain.EntryOrderCompleted, "SN-4").
		Return(&domain.LedgerEntry{}, nil)
	d.orderRepo.EXPECT().MarkCompleted(ctx, tx, orderID, gomock.Any()).Return(nil)

	_, err := d.svc.ConfirmProfit(ctx, orderID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, m.StarRating, 0.001)
	assert.Equal(t, 100, m.PositiveRatingRate)
}

// ==================== Cancel Tests ====================

func TestOrderService_Cancel_PaidOrderRefundsCostBasis(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:             orderID,
		OrderSN:        "SN-5",
		MerchantID:     merchantID,
		TotalCost:      250,
		SellingPrice:   380,
		Status:         domain.OrderStatusPendingShipment,
		PickupDeadline: time.Now().UTC().Add(time.Hour),
	}
	m := &domain.Merchant{ID: merchantID, CreditScore: 100, PendingAmount: 380}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	d.ledger.EXPECT().
		ApplyInTx(ctx, tx, m, int64(250), domain.EntryAdminAdd, "SN-5").
		Return(&domain.LedgerEntry{Amount: 250}, nil)
	d.orderRepo.EXPECT().MarkCancelled(ctx, tx, orderID, domain.CancelReasonAdmin).Return(nil)

	got, err := d.svc.Cancel(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.Equal(t, domain.CancelReasonAdmin, got.CancelReason)
	assert.Equal(t, 95, m.CreditScore)
	assert.Equal(t, int64(0), m.PendingAmount)
}

func TestOrderService_Cancel_UnpaidOrderNoLedgerEntry(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	orderID := uuid.New()
	tx := &mockTx{}

	order := &domain.Order{
		ID:             orderID,
		MerchantID:     merchantID,
		TotalCost:      250,
		Status:         domain.OrderStatusPendingPayment,
		PickupDeadline: time.Now().UTC().Add(-time.Hour), // past deadline
	}
	m := &domain.Merchant{ID: merchantID, CreditScore: 100}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(order, nil)
	d.merchantRepo.EXPECT().GetByIDForUpdate(ctx, tx, merchantID).Return(m, nil)
	// No wallet movement: the merchant never paid. Financials still persist
	// because the credit penalty changed.
	d.merchantRepo.EXPECT().UpdateFinancials(ctx, tx, m).Return(nil)
	d.orderRepo.EXPECT().MarkCancelled(ctx, tx, orderID, domain.CancelReasonAdmin).Return(nil)

	got, err := d.svc.Cancel(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	// 5 for the cancellation plus 10 for being past the deadline.
	assert.Equal(t, 85, m.CreditScore)
}

func TestOrderService_Cancel_TerminalOrder(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(&domain.Order{
		ID:     orderID,
		Status: domain.OrderStatusCancelled,
	}, nil)

	got, err := d.svc.Cancel(ctx, orderID)
	assert.Nil(t, got)
	assertAppError(t, err, "STA_003")
}

// ==================== Bulk & Sweep Tests ====================

func TestOrderService_BulkShip(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.orderRepo.EXPECT().BulkShip(ctx, &merchantID).Return(int64(5), nil)

	n, err := d.svc.BulkShip(ctx, &merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestOrderService_SweepExpired(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	now := time.Now().UTC()

	d.orderRepo.EXPECT().CancelExpired(ctx, now, domain.CancelReasonTimeout).Return(int64(3), nil)

	n, err := d.svc.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestOrderService_GetByID_NotFound(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()

	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(nil, nil)

	got, err := d.svc.GetByID(ctx, orderID)
	assert.Nil(t, got)
	assertAppError(t, err, "RES_001")
}
