package postgres

import (
	"context"
	"fmt"

	"marketplace-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AttendanceRepo implements ports.AttendanceRepository.
type AttendanceRepo struct {
	pool Pool
}

// NewAttendanceRepo creates a new AttendanceRepo.
func NewAttendanceRepo(pool Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

// Create inserts a sign-in record within a transaction. The unique
// (merchant_id, sign_in_date) constraint rejects a duplicate day.
func (r *AttendanceRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Attendance) error {
	query := `INSERT INTO attendances (id, merchant_id, sign_in_date, reward, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, a.ID, a.MerchantID, a.SignInDate, a.Reward, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// Exists reports whether the merchant already signed in on the date.
func (r *AttendanceRepo) Exists(ctx context.Context, merchantID uuid.UUID, signInDate string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM attendances WHERE merchant_id = $1 AND sign_in_date = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, merchantID, signInDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}
