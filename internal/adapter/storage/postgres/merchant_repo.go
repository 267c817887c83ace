package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const merchantColumns = `id, merchant_code, store_name, vip_level, balance, pending_amount,
	total_income, total_profit, credit_score, star_rating, positive_rating_rate,
	status, is_withdrawal_forbidden, funds_password_hash,
	last_sign_in, consecutive_sign_ins, monthly_sign_ins, created_at, updated_at`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := row.Scan(
		&m.ID, &m.MerchantCode, &m.StoreName, &m.VipLevel, &m.Balance, &m.PendingAmount,
		&m.TotalIncome, &m.TotalProfit, &m.CreditScore, &m.StarRating, &m.PositiveRatingRate,
		&m.Status, &m.IsWithdrawalForbidden, &m.FundsPasswordHash,
		&m.LastSignIn, &m.ConsecutiveSignIns, &m.MonthlySignIns, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (id, merchant_code, store_name, vip_level, balance, pending_amount,
		total_income, total_profit, credit_score, star_rating, positive_rating_rate,
		status, is_withdrawal_forbidden, funds_password_hash,
		last_sign_in, consecutive_sign_ins, monthly_sign_ins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.MerchantCode, m.StoreName, m.VipLevel, m.Balance, m.PendingAmount,
		m.TotalIncome, m.TotalProfit, m.CreditScore, m.StarRating, m.PositiveRatingRate,
		m.Status, m.IsWithdrawalForbidden, m.FundsPasswordHash,
		m.LastSignIn, m.ConsecutiveSignIns, m.MonthlySignIns, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID (without locking).
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`

	m, err := scanMerchant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// GetByCode fetches a merchant by its public store code.
func (r *MerchantRepo) GetByCode(ctx context.Context, code string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_code = $1`

	m, err := scanMerchant(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("get merchant by code: %w", err)
	}
	return m, nil
}

// GetByIDForUpdate fetches a merchant with a pessimistic row lock.
// This MUST be called within a transaction; the lock serializes every
// ledger mutation for the merchant until the transaction ends.
func (r *MerchantRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1 FOR UPDATE`

	m, err := scanMerchant(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get merchant for update: %w", err)
	}
	return m, nil
}

// UpdateFinancials persists wallet state, accumulators, ratings and
// tier within a transaction. Callers must hold the row lock.
func (r *MerchantRepo) UpdateFinancials(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	query := `UPDATE merchants
		SET vip_level=$1, balance=$2, pending_amount=$3, total_income=$4, total_profit=$5,
			credit_score=$6, star_rating=$7, positive_rating_rate=$8, updated_at=NOW()
		WHERE id=$9`

	tag, err := tx.Exec(ctx, query,
		m.VipLevel, m.Balance, m.PendingAmount, m.TotalIncome, m.TotalProfit,
		m.CreditScore, m.StarRating, m.PositiveRatingRate, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update merchant financials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", m.ID)
	}
	return nil
}

// UpdateSignIn persists the sign-in counters within a transaction.
func (r *MerchantRepo) UpdateSignIn(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	query := `UPDATE merchants
		SET last_sign_in=$1, consecutive_sign_ins=$2, monthly_sign_ins=$3, updated_at=NOW()
		WHERE id=$4`

	tag, err := tx.Exec(ctx, query, m.LastSignIn, m.ConsecutiveSignIns, m.MonthlySignIns, m.ID)
	if err != nil {
		return fmt.Errorf("update merchant sign-in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", m.ID)
	}
	return nil
}
