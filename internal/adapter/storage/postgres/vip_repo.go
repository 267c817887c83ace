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

const vipApplicationColumns = `id, merchant_id, requested_level, price, status, reviewed_by, reviewed_at, created_at`

// VipRepo implements ports.VipRepository.
type VipRepo struct {
	pool Pool
}

// NewVipRepo creates a new VipRepo.
func NewVipRepo(pool Pool) *VipRepo {
	return &VipRepo{pool: pool}
}

// ListLevels returns every tier, lowest first.
func (r *VipRepo) ListLevels(ctx context.Context) ([]domain.VipLevel, error) {
	query := `SELECT level, name, price, rate_bps, active, created_at
		FROM vip_levels ORDER BY level ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vip levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.VipLevel
	for rows.Next() {
		var l domain.VipLevel
		if err := rows.Scan(&l.Level, &l.Name, &l.Price, &l.RateBps, &l.Active, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vip level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vip levels: %w", err)
	}
	return levels, nil
}

// GetLevel fetches one tier.
func (r *VipRepo) GetLevel(ctx context.Context, level int) (*domain.VipLevel, error) {
	query := `SELECT level, name, price, rate_bps, active, created_at
		FROM vip_levels WHERE level = $1`

	l := &domain.VipLevel{}
	err := r.pool.QueryRow(ctx, query, level).Scan(&l.Level, &l.Name, &l.Price, &l.RateBps, &l.Active, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vip level: %w", err)
	}
	return l, nil
}

func scanVipApplication(row pgx.Row) (*domain.VipApplication, error) {
	a := &domain.VipApplication{}
	err := row.Scan(
		&a.ID, &a.MerchantID, &a.RequestedLevel, &a.Price,
		&a.Status, &a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// CreateApplication inserts an upgrade request. The partial unique
// index on pending applications rejects a second concurrent request.
func (r *VipRepo) CreateApplication(ctx context.Context, a *domain.VipApplication) error {
	query := `INSERT INTO vip_applications (id, merchant_id, requested_level, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, a.ID, a.MerchantID, a.RequestedLevel, a.Price, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert vip application: %w", err)
	}
	return nil
}

// GetApplicationByID fetches an application (non-locking read).
func (r *VipRepo) GetApplicationByID(ctx context.Context, id uuid.UUID) (*domain.VipApplication, error) {
	query := `SELECT ` + vipApplicationColumns + ` FROM vip_applications WHERE id = $1`

	a, err := scanVipApplication(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get vip application by id: %w", err)
	}
	return a, nil
}

// GetApplicationByIDForUpdate fetches an application with a pessimistic
// row lock. This MUST be called within a transaction.
func (r *VipRepo) GetApplicationByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VipApplication, error) {
	query := `SELECT ` + vipApplicationColumns + ` FROM vip_applications WHERE id = $1 FOR UPDATE`

	a, err := scanVipApplication(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get vip application for update: %w", err)
	}
	return a, nil
}

// HasPendingApplication reports whether the merchant has an unreviewed
// upgrade request.
func (r *VipRepo) HasPendingApplication(ctx context.Context, merchantID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM vip_applications WHERE merchant_id = $1 AND status = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, merchantID, domain.VipApplicationPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending vip application: %w", err)
	}
	return exists, nil
}

// SetApplicationReviewed stamps the review outcome within a transaction.
func (r *VipRepo) SetApplicationReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.VipApplicationStatus, reviewer uuid.UUID, at time.Time) error {
	query := `UPDATE vip_applications SET status = $1, reviewed_by = $2, reviewed_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, status, reviewer, at, id)
	if err != nil {
		return fmt.Errorf("set vip application reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vip application not found: %s", id)
	}
	return nil
}

// ListApplications returns a filtered page of applications, newest
// first, with the total matching count.
func (r *VipRepo) ListApplications(ctx context.Context, params ports.RequestListParams) ([]domain.VipApplication, int64, error) {
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
	countQuery := `SELECT COUNT(*) FROM vip_applications WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vip applications: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM vip_applications WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, vipApplicationColumns, cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list vip applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.VipApplication
	for rows.Next() {
		var a domain.VipApplication
		if err := rows.Scan(
			&a.ID, &a.MerchantID, &a.RequestedLevel, &a.Price,
			&a.Status, &a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan vip application: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate vip applications: %w", err)
	}
	return apps, total, nil
}
