package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, order_sn, merchant_id, total_cost, selling_price, earnings,
	completion_days, pickup_deadline, status, profit_confirmed, cancel_reason,
	picked_up_at, profit_confirmed_at, completed_at, created_at`

// querier abstracts pool-level and transaction-level query execution.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.OrderSN, &o.MerchantID, &o.TotalCost, &o.SellingPrice, &o.Earnings,
		&o.CompletionDays, &o.PickupDeadline, &o.Status, &o.ProfitConfirmed, &o.CancelReason,
		&o.PickedUpAt, &o.ProfitConfirmedAt, &o.CompletedAt, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func loadOrderItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, product_id, title, quantity, cost_price, sales_price
		FROM order_items WHERE order_id = $1`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Quantity, &it.CostPrice, &it.SalesPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Create inserts the order and its item snapshots within a transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	query := `INSERT INTO orders (id, order_sn, merchant_id, total_cost, selling_price, earnings,
		completion_days, pickup_deadline, status, profit_confirmed, cancel_reason,
		picked_up_at, profit_confirmed_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := tx.Exec(ctx, query,
		order.ID, order.OrderSN, order.MerchantID, order.TotalCost, order.SellingPrice, order.Earnings,
		order.CompletionDays, order.PickupDeadline, order.Status, order.ProfitConfirmed, order.CancelReason,
		order.PickedUpAt, order.ProfitConfirmedAt, order.CompletedAt, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (id, order_id, product_id, title, quantity, cost_price, sales_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, it := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery,
			it.ID, it.OrderID, it.ProductID, it.Title, it.Quantity, it.CostPrice, it.SalesPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// GetByID fetches an order with its items (non-locking read).
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if o == nil {
		return nil, nil
	}
	if o.Items, err = loadOrderItems(ctx, r.pool, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByIDForUpdate fetches an order with a pessimistic row lock.
// This MUST be called within a transaction.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	if o == nil {
		return nil, nil
	}
	if o.Items, err = loadOrderItems(ctx, tx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatusIf moves the order from one status to another and reports
// whether the row matched. Losing the race is not an error.
func (r *OrderRepo) UpdateStatusIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`

	tag, err := tx.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPickedUp transitions pendingPayment to pendingShipment, stamping
// the pickup time. Returns false if the order was no longer payable.
func (r *OrderRepo) MarkPickedUp(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = $1, picked_up_at = $2
		WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, domain.OrderStatusPendingShipment, at, id, domain.OrderStatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark order picked up: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted finalizes a shipped order with its profit confirmed.
func (r *OrderRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	query := `UPDATE orders
		SET status = $1, profit_confirmed = TRUE, profit_confirmed_at = $2, completed_at = $2
		WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, domain.OrderStatusCompleted, at, id, domain.OrderStatusShipped)
	if err != nil {
		return fmt.Errorf("mark order completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not shipped: %s", id)
	}
	return nil
}

// MarkCancelled moves an order to cancelled with the given reason.
func (r *OrderRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	query := `UPDATE orders SET status = $1, cancel_reason = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, domain.OrderStatusCancelled, reason, id)
	if err != nil {
		return fmt.Errorf("mark order cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", id)
	}
	return nil
}

// BulkShip moves pendingShipment orders to shipped, optionally scoped
// to one merchant, returning the number of rows changed.
func (r *OrderRepo) BulkShip(ctx context.Context, merchantID *uuid.UUID) (int64, error) {
	query := `UPDATE orders SET status = $1 WHERE status = $2`
	args := []any{domain.OrderStatusShipped, domain.OrderStatusPendingShipment}

	if merchantID != nil {
		query += ` AND merchant_id = $3`
		args = append(args, *merchantID)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk ship orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListShipped returns up to limit shipped orders, oldest first.
func (r *OrderRepo) ListShipped(ctx context.Context, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, domain.OrderStatusShipped, limit)
	if err != nil {
		return nil, fmt.Errorf("list shipped orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// CancelExpired cancels every pendingPayment order whose pickup
// deadline passed before now. A single conditional update keeps the
// sweep atomic against concurrent pickups.
func (r *OrderRepo) CancelExpired(ctx context.Context, now time.Time, reason string) (int64, error) {
	query := `UPDATE orders SET status = $1, cancel_reason = $2
		WHERE status = $3 AND pickup_deadline < $4`

	tag, err := r.pool.Exec(ctx, query,
		domain.OrderStatusCancelled, reason, domain.OrderStatusPendingPayment, now,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel expired orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountCompleted returns a merchant's terminal order count and how many
// of those completed with profit confirmed.
func (r *OrderRepo) CountCompleted(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (int64, int64, error) {
	query := `SELECT COUNT(*) FILTER (WHERE status IN ($2, $3)),
		COUNT(*) FILTER (WHERE status = $2 AND profit_confirmed)
		FROM orders WHERE merchant_id = $1`

	var total, confirmed int64
	err := tx.QueryRow(ctx, query, merchantID,
		domain.OrderStatusCompleted, domain.OrderStatusCancelled,
	).Scan(&total, &confirmed)
	if err != nil {
		return 0, 0, fmt.Errorf("count completed orders: %w", err)
	}
	return total, confirmed, nil
}

// List returns a filtered page of orders, newest first, with the total
// matching count. Items are not loaded for list views.
func (r *OrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	where := []string{"TRUE"}
	var args []any

	if params.MerchantID != nil {
		args = append(args, *params.MerchantID)
		where = append(where, fmt.Sprintf("merchant_id = $%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, *params.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.OrderSN != "" {
		args = append(args, params.OrderSN)
		where = append(where, fmt.Sprintf("order_sn = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM orders WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, orderColumns, cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.OrderSN, &o.MerchantID, &o.TotalCost, &o.SellingPrice, &o.Earnings,
			&o.CompletionDays, &o.PickupDeadline, &o.Status, &o.ProfitConfirmed, &o.CancelReason,
			&o.PickedUpAt, &o.ProfitConfirmedAt, &o.CompletedAt, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}
