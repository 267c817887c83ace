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

const rechargeColumns = `id, recharge_sn, merchant_id, amount, method, currency, voucher,
	status, reviewed_by, reviewed_at, created_at`

// RechargeRepo implements ports.RechargeRepository.
type RechargeRepo struct {
	pool Pool
}

// NewRechargeRepo creates a new RechargeRepo.
func NewRechargeRepo(pool Pool) *RechargeRepo {
	return &RechargeRepo{pool: pool}
}

func scanRecharge(row pgx.Row) (*domain.Recharge, error) {
	rec := &domain.Recharge{}
	err := row.Scan(
		&rec.ID, &rec.RechargeSN, &rec.MerchantID, &rec.Amount, &rec.Method, &rec.Currency,
		&rec.Voucher, &rec.Status, &rec.ReviewedBy, &rec.ReviewedAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Create inserts a top-up request within a transaction.
func (r *RechargeRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.Recharge) error {
	query := `INSERT INTO recharges (id, recharge_sn, merchant_id, amount, method, currency, voucher, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		rec.ID, rec.RechargeSN, rec.MerchantID, rec.Amount, rec.Method,
		rec.Currency, rec.Voucher, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recharge: %w", err)
	}
	return nil
}

// GetByID fetches a recharge by its UUID (non-locking read).
func (r *RechargeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Recharge, error) {
	query := `SELECT ` + rechargeColumns + ` FROM recharges WHERE id = $1`

	rec, err := scanRecharge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get recharge by id: %w", err)
	}
	return rec, nil
}

// GetByIDForUpdate fetches a recharge with a pessimistic row lock.
// This MUST be called within a transaction.
func (r *RechargeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Recharge, error) {
	query := `SELECT ` + rechargeColumns + ` FROM recharges WHERE id = $1 FOR UPDATE`

	rec, err := scanRecharge(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get recharge for update: %w", err)
	}
	return rec, nil
}

// SetReviewed stamps the review outcome within a transaction.
func (r *RechargeRepo) SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RechargeStatus, reviewer uuid.UUID, at time.Time) error {
	query := `UPDATE recharges SET status = $1, reviewed_by = $2, reviewed_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, status, reviewer, at, id)
	if err != nil {
		return fmt.Errorf("set recharge reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recharge not found: %s", id)
	}
	return nil
}

// List returns a filtered page of recharges, newest first, with the
// total matching count.
func (r *RechargeRepo) List(ctx context.Context, params ports.RequestListParams) ([]domain.Recharge, int64, error) {
	where := []string{"TRUE"}
	var args []any

	if params.MerchantID != nil {
		args = append(args, *params.MerchantID)
		where = append(where, fmt.Sprintf("merchant_id = $%d", len(args)))
	}
	if params.Status != "" {
		args = append(args, params.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM recharges WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recharges: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM recharges WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, rechargeColumns, cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recharges: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recharge
	for rows.Next() {
		var rec domain.Recharge
		if err := rows.Scan(
			&rec.ID, &rec.RechargeSN, &rec.MerchantID, &rec.Amount, &rec.Method, &rec.Currency,
			&rec.Voucher, &rec.Status, &rec.ReviewedBy, &rec.ReviewedAt, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan recharge: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate recharges: %w", err)
	}
	return recs, total, nil
}
