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

const defaultCompletionDays = 1

// OrderServiceImpl implements ports.OrderService. Transitions that move
// money lock the order row and the merchant row in one transaction and
// route the delta through the ledger; status changes use conditional
// updates so a transition can never be applied twice.
type OrderServiceImpl struct {
	orderRepo      ports.OrderRepository
	merchantRepo   ports.MerchantRepository
	productRepo    ports.ProductRepository
	ledger         ports.LedgerService
	transactor     ports.DBTransactor
	completionDays int
	log            zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl. completionDays is the
// pickup window applied when a dispatch request carries none.
func NewOrderService(
	orderRepo ports.OrderRepository,
	merchantRepo ports.MerchantRepository,
	productRepo ports.ProductRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	completionDays int,
	log zerolog.Logger,
) *OrderServiceImpl {
	if completionDays <= 0 {
		completionDays = defaultCompletionDays
	}
	return &OrderServiceImpl{
		orderRepo:      orderRepo,
		merchantRepo:   merchantRepo,
		productRepo:    productRepo,
		ledger:         ledger,
		transactor:     transactor,
		completionDays: completionDays,
		log:            log,
	}
}

// Dispatch creates an order in pendingPayment. Prices are snapshotted
// from the catalog and earnings are fixed from the merchant's VIP rate
// in effect now, so later upgrades never change this order's payout.
func (s *OrderServiceImpl) Dispatch(ctx context.Context, req ports.DispatchRequest) (*domain.Order, error) {
	if len(req.Lines) == 0 {
		return nil, apperror.Validation("order needs at least one line item")
	}

	m, err := s.merchantRepo.GetByCode(ctx, req.MerchantCode)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !m.IsApproved() {
		return nil, apperror.ErrInvalidState("merchant is not approved")
	}

	completionDays := req.CompletionDays
	if completionDays <= 0 {
		completionDays = s.completionDays
	}

	orderID := uuid.New()
	var totalCost, sellingPrice int64
	items := make([]domain.OrderItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, apperror.Validation("line quantity must be positive")
		}
		p, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get product: %w", err))
		}
		if p == nil {
			return nil, apperror.ErrNotFound("product")
		}
		qty := int64(line.Quantity)
		totalCost += p.CostPrice * qty
		sellingPrice += p.SalesPrice * qty
		items = append(items, domain.OrderItem{
			ID:         uuid.New(),
			OrderID:    orderID,
			ProductID:  p.ID,
			Title:      p.Title,
			Quantity:   line.Quantity,
			CostPrice:  p.CostPrice,
			SalesPrice: p.SalesPrice,
		})
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:             orderID,
		OrderSN:        domain.NewOrderSN(),
		MerchantID:     m.ID,
		Items:          items,
		TotalCost:      totalCost,
		SellingPrice:   sellingPrice,
		Earnings:       domain.EarningsFor(sellingPrice, m.VipLevel),
		CompletionDays: completionDays,
		PickupDeadline: now.AddDate(0, 0, completionDays),
		Status:         domain.OrderStatusPendingPayment,
		CreatedAt:      now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_sn", order.OrderSN).
		Str("merchant_code", req.MerchantCode).
		Int64("total_cost", totalCost).
		Int64("earnings", order.Earnings).
		Msg("order dispatched")

	return order, nil
}

// DispatchBulk dispatches to many merchants, collecting per-item errors
// instead of failing the batch.
func (s *OrderServiceImpl) DispatchBulk(ctx context.Context, reqs []ports.DispatchRequest) ([]domain.Order, []ports.BulkError) {
	orders := make([]domain.Order, 0, len(reqs))
	var errs []ports.BulkError
	for _, req := range reqs {
		order, err := s.Dispatch(ctx, req)
		if err != nil {
			errs = append(errs, ports.BulkError{MerchantCode: req.MerchantCode, Reason: err.Error()})
			continue
		}
		orders = append(orders, *order)
	}
	return orders, errs
}

// Pickup moves pendingPayment → pendingShipment: the merchant pays the
// cost price out of the wallet and the selling price becomes pending.
func (s *OrderServiceImpl) Pickup(ctx context.Context, orderID, merchantID uuid.UUID) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.MerchantID != merchantID {
		return nil, apperror.ErrNotYours()
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return nil, apperror.ErrInvalidState("order is not awaiting payment")
	}

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	// The debit and the pending increment land in one UpdateFinancials
	// write inside ApplyInTx.
	m.PendingAmount += order.SellingPrice
	if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, -order.TotalCost, domain.EntryOrderPayment, order.OrderSN); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	moved, err := s.orderRepo.MarkPickedUp(ctx, dbTx, order.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark picked up: %w", err))
	}
	if !moved {
		// Row lock should make this unreachable; keep the guard anyway.
		return nil, apperror.ErrInvalidState("order is not awaiting payment")
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	order.Status = domain.OrderStatusPendingShipment
	order.PickedUpAt = &now

	s.log.Info().
		Str("order_sn", order.OrderSN).
		Str("merchant_id", merchantID.String()).
		Int64("total_cost", order.TotalCost).
		Msg("order picked up")

	return order, nil
}

// BulkShip moves pendingShipment orders to shipped; status-only.
func (s *OrderServiceImpl) BulkShip(ctx context.Context, merchantID *uuid.UUID) (int64, error) {
	n, err := s.orderRepo.BulkShip(ctx, merchantID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("bulk ship: %w", err))
	}
	return n, nil
}

// ConfirmProfit moves shipped → completed, releasing the earnings fixed
// at dispatch back into the wallet. A second confirmation is rejected
// and writes nothing.
func (s *OrderServiceImpl) ConfirmProfit(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.ProfitConfirmed {
		return nil, apperror.ErrAlreadyConfirmed()
	}
	if order.Status != domain.OrderStatusShipped {
		return nil, apperror.ErrInvalidState("order is not shipped")
	}

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, order.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	now := time.Now().UTC()

	m.ReleasePending(order.SellingPrice)
	m.TotalProfit += order.Earnings
	m.TotalIncome += order.Earnings
	if !order.Overdue(now) {
		m.AddStarRating()
	}

	total, confirmed, err := s.orderRepo.CountCompleted(ctx, dbTx, m.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count completed: %w", err))
	}
	// This order completes now, fully confirmed.
	total++
	confirmed++
	m.PositiveRatingRate = int(confirmed * 100 / total)

	if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, order.Earnings, domain.EntryOrderCompleted, order.OrderSN); err != nil {
		return nil, err
	}

	if err := s.orderRepo.MarkCompleted(ctx, dbTx, order.ID, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark completed: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	order.Status = domain.OrderStatusCompleted
	order.ProfitConfirmed = true
	order.ProfitConfirmedAt = &now
	order.CompletedAt = &now

	s.log.Info().
		Str("order_sn", order.OrderSN).
		Int64("earnings", order.Earnings).
		Msg("order profit confirmed")

	return order, nil
}

// BulkComplete confirms profit for every shipped order.
func (s *OrderServiceImpl) BulkComplete(ctx context.Context) (int64, error) {
	orders, err := s.orderRepo.ListShipped(ctx, 1000)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list shipped: %w", err))
	}

	var completed int64
	for _, order := range orders {
		if _, err := s.ConfirmProfit(ctx, order.ID); err != nil {
			s.log.Warn().Err(err).Str("order_sn", order.OrderSN).Msg("bulk complete: skipping order")
			continue
		}
		completed++
	}
	return completed, nil
}

// Cancel moves any non-terminal order to cancelled. A paid order gets a
// compensating credit of its cost basis; the cancellation costs credit
// score, more so past the pickup deadline.
func (s *OrderServiceImpl) Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.IsTerminal() {
		return nil, apperror.ErrTerminalState()
	}

	m, err := s.merchantRepo.GetByIDForUpdate(ctx, dbTx, order.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	now := time.Now().UTC()

	m.ApplyCreditPenalty(domain.CancelPenalty)
	if order.Overdue(now) {
		m.ApplyCreditPenalty(domain.OverduePenalty)
	}

	refunded := order.Paid()
	if refunded {
		m.ReleasePending(order.SellingPrice)
		if _, err := s.ledger.ApplyInTx(ctx, dbTx, m, order.TotalCost, domain.EntryAdminAdd, order.OrderSN); err != nil {
			return nil, err
		}
	} else if err := s.merchantRepo.UpdateFinancials(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant financials: %w", err))
	}

	if err := s.orderRepo.MarkCancelled(ctx, dbTx, order.ID, domain.CancelReasonAdmin); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark cancelled: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	order.Status = domain.OrderStatusCancelled
	order.CancelReason = domain.CancelReasonAdmin

	s.log.Info().
		Str("order_sn", order.OrderSN).
		Bool("refunded", refunded).
		Msg("order cancelled")

	return order, nil
}

// SweepExpired cancels every unpaid order whose pickup deadline passed,
// as a single conditional update. No payment happened yet, so no ledger
// compensation is written.
func (s *OrderServiceImpl) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.orderRepo.CancelExpired(ctx, now, domain.CancelReasonTimeout)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("cancel expired: %w", err))
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("expired orders cancelled")
	}
	return n, nil
}

// GetByID returns one order with its line items.
func (s *OrderServiceImpl) GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	return order, nil
}

// List returns a filtered, paginated slice of orders.
func (s *OrderServiceImpl) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 10
	}
	orders, total, err := s.orderRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list orders: %w", err))
	}
	return orders, total, nil
}
