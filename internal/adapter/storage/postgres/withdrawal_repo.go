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

const withdrawalColumns = `id, withdrawal_sn, merchant_id, amount, method, currency,
	account_name, bank_card_number, bank_name, network, wallet_address,
	status, rejection_reason, reviewed_by, reviewed_at, created_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w := &domain.Withdrawal{}
	err := row.Scan(
		&w.ID, &w.WithdrawalSN, &w.MerchantID, &w.Amount, &w.Method, &w.Currency,
		&w.AccountName, &w.BankCardNumber, &w.BankName, &w.Network, &w.WalletAddress,
		&w.Status, &w.RejectionReason, &w.ReviewedBy, &w.ReviewedAt, &w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// Create inserts a withdrawal request within a transaction. The caller
// debits the wallet in the same transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, withdrawal_sn, merchant_id, amount, method, currency,
		account_name, bank_card_number, bank_name, network, wallet_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.WithdrawalSN, w.MerchantID, w.Amount, w.Method, w.Currency,
		w.AccountName, w.BankCardNumber, w.BankName, w.Network, w.WalletAddress,
		w.Status, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal by its UUID (non-locking read).
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a withdrawal with a pessimistic row lock.
// This MUST be called within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return w, nil
}

// SetReviewed stamps the review outcome within a transaction.
func (r *WithdrawalRepo) SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason string, reviewer uuid.UUID, at time.Time) error {
	query := `UPDATE withdrawals
		SET status = $1, rejection_reason = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, status, reason, reviewer, at, id)
	if err != nil {
		return fmt.Errorf("set withdrawal reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", id)
	}
	return nil
}

// List returns a filtered page of withdrawals, newest first, with the
// total matching count.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.RequestListParams) ([]domain.Withdrawal, int64, error) {
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
	countQuery := `SELECT COUNT(*) FROM withdrawals WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM withdrawals WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, withdrawalColumns, cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var ws []domain.Withdrawal
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(
			&w.ID, &w.WithdrawalSN, &w.MerchantID, &w.Amount, &w.Method, &w.Currency,
			&w.AccountName, &w.BankCardNumber, &w.BankName, &w.Network, &w.WalletAddress,
			&w.Status, &w.RejectionReason, &w.ReviewedBy, &w.ReviewedAt, &w.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan withdrawal: %w", err)
		}
		ws = append(ws, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate withdrawals: %w", err)
	}
	return ws, total, nil
}
