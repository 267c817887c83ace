package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The repos in this file back the integration tests with plain maps.
// Reads hand out copies and writes copy back, so a transaction that
// fails halfway leaves the stores untouched, like a rollback would.

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func cloneMerchant(m *domain.Merchant) *domain.Merchant {
	c := *m
	return &c
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.merchants {
		if existing.MerchantCode == m.MerchantCode {
			return fmt.Errorf("merchant code already exists")
		}
	}
	r.merchants[m.ID] = cloneMerchant(m)
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	return cloneMerchant(m), nil
}

func (r *inMemoryMerchantRepo) GetByCode(ctx context.Context, code string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.MerchantCode == code {
			return cloneMerchant(m), nil
		}
	}
	return nil, nil
}

func (r *inMemoryMerchantRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Merchant, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryMerchantRepo) UpdateFinancials(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.merchants[m.ID]
	if !ok {
		return fmt.Errorf("merchant not found")
	}
	stored.VipLevel = m.VipLevel
	stored.Balance = m.Balance
	stored.PendingAmount = m.PendingAmount
	stored.TotalIncome = m.TotalIncome
	stored.TotalProfit = m.TotalProfit
	stored.CreditScore = m.CreditScore
	stored.StarRating = m.StarRating
	stored.PositiveRatingRate = m.PositiveRatingRate
	return nil
}

func (r *inMemoryMerchantRepo) UpdateSignIn(ctx context.Context, tx pgx.Tx, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.merchants[m.ID]
	if !ok {
		return fmt.Errorf("merchant not found")
	}
	stored.LastSignIn = m.LastSignIn
	stored.ConsecutiveSignIns = m.ConsecutiveSignIns
	stored.MonthlySignIns = m.MonthlySignIns
	return nil
}

// --- In-Memory Ledger Entry Repo ---

type inMemoryLedgerEntryRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerEntryRepo() *inMemoryLedgerEntryRepo {
	return &inMemoryLedgerEntryRepo{}
}

func (r *inMemoryLedgerEntryRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryLedgerEntryRepo) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for i := len(r.entries) - 1; i >= 0; i-- { // newest first
		e := r.entries[i]
		if e.MerchantID != params.MerchantID {
			continue
		}
		if params.Type != nil && e.Type != *params.Type {
			continue
		}
		if params.From != nil && e.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && e.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, e)
	}
	return paginate(result, params.Page, params.PageSize)
}

func (r *inMemoryLedgerEntryRepo) SumAmounts(ctx context.Context, merchantID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, e := range r.entries {
		if e.MerchantID == merchantID {
			sum += e.Amount
		}
	}
	return sum, nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *inMemoryOrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryOrderRepo) UpdateStatusIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *inMemoryOrderRepo) MarkPickedUp(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.OrderStatusPendingPayment {
		return false, nil
	}
	o.Status = domain.OrderStatusPendingShipment
	o.PickedUpAt = &at
	return true, nil
}

func (r *inMemoryOrderRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.OrderStatusShipped {
		return fmt.Errorf("order is not shipped")
	}
	o.Status = domain.OrderStatusCompleted
	o.ProfitConfirmed = true
	o.ProfitConfirmedAt = &at
	o.CompletedAt = &at
	return nil
}

func (r *inMemoryOrderRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order not found")
	}
	o.Status = domain.OrderStatusCancelled
	o.CancelReason = reason
	return nil
}

func (r *inMemoryOrderRepo) BulkShip(ctx context.Context, merchantID *uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, o := range r.orders {
		if o.Status != domain.OrderStatusPendingShipment {
			continue
		}
		if merchantID != nil && o.MerchantID != *merchantID {
			continue
		}
		o.Status = domain.OrderStatusShipped
		n++
	}
	return n, nil
}

func (r *inMemoryOrderRepo) ListShipped(ctx context.Context, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusShipped {
			result = append(result, *cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inMemoryOrderRepo) CancelExpired(ctx context.Context, now time.Time, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusPendingPayment && o.PickupDeadline.Before(now) {
			o.Status = domain.OrderStatusCancelled
			o.CancelReason = reason
			n++
		}
	}
	return n, nil
}

func (r *inMemoryOrderRepo) CountCompleted(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (int64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total, confirmed int64
	for _, o := range r.orders {
		if o.MerchantID != merchantID {
			continue
		}
		switch o.Status {
		case domain.OrderStatusCompleted:
			total++
			if o.ProfitConfirmed {
				confirmed++
			}
		case domain.OrderStatusCancelled:
			total++
		}
	}
	return total, confirmed, nil
}

func (r *inMemoryOrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Order
	for _, o := range r.orders {
		if params.MerchantID != nil && o.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		if params.OrderSN != "" && !strings.Contains(o.OrderSN, params.OrderSN) {
			continue
		}
		result = append(result, *cloneOrder(o))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, params.Page, params.PageSize)
}

// --- In-Memory Product Repo ---

type inMemoryProductRepo struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*domain.Product
}

func newInMemoryProductRepo() *inMemoryProductRepo {
	return &inMemoryProductRepo{products: make(map[uuid.UUID]*domain.Product)}
}

func (r *inMemoryProductRepo) Create(ctx context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	r.products[p.ID] = &c
	return nil
}

func (r *inMemoryProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

// --- In-Memory Recharge Repo ---

type inMemoryRechargeRepo struct {
	mu        sync.RWMutex
	recharges map[uuid.UUID]*domain.Recharge
}

func newInMemoryRechargeRepo() *inMemoryRechargeRepo {
	return &inMemoryRechargeRepo{recharges: make(map[uuid.UUID]*domain.Recharge)}
}

func (r *inMemoryRechargeRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.Recharge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rec
	r.recharges[rec.ID] = &c
	return nil
}

func (r *inMemoryRechargeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Recharge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recharges[id]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (r *inMemoryRechargeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Recharge, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryRechargeRepo) SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RechargeStatus, reviewer uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recharges[id]
	if !ok {
		return fmt.Errorf("recharge not found")
	}
	rec.Status = status
	rec.ReviewedBy = &reviewer
	rec.ReviewedAt = &at
	return nil
}

func (r *inMemoryRechargeRepo) List(ctx context.Context, params ports.RequestListParams) ([]domain.Recharge, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Recharge
	for _, rec := range r.recharges {
		if params.MerchantID != nil && rec.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != "" && string(rec.Status) != params.Status {
			continue
		}
		result = append(result, *rec)
	}
	return paginate(result, params.Page, params.PageSize)
}

// --- In-Memory Withdrawal Repo ---

type inMemoryWithdrawalRepo struct {
	mu          sync.RWMutex
	withdrawals map[uuid.UUID]*domain.Withdrawal
}

func newInMemoryWithdrawalRepo() *inMemoryWithdrawalRepo {
	return &inMemoryWithdrawalRepo{withdrawals: make(map[uuid.UUID]*domain.Withdrawal)}
}

func (r *inMemoryWithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *w
	r.withdrawals[w.ID] = &c
	return nil
}

func (r *inMemoryWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (r *inMemoryWithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWithdrawalRepo) SetReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason string, reviewer uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal not found")
	}
	w.Status = status
	w.RejectionReason = reason
	w.ReviewedBy = &reviewer
	w.ReviewedAt = &at
	return nil
}

func (r *inMemoryWithdrawalRepo) List(ctx context.Context, params ports.RequestListParams) ([]domain.Withdrawal, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Withdrawal
	for _, w := range r.withdrawals {
		if params.MerchantID != nil && w.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != "" && string(w.Status) != params.Status {
			continue
		}
		result = append(result, *w)
	}
	return paginate(result, params.Page, params.PageSize)
}

// --- In-Memory VIP Repo ---

type inMemoryVipRepo struct {
	mu           sync.RWMutex
	levels       map[int]*domain.VipLevel
	applications map[uuid.UUID]*domain.VipApplication
}

func newInMemoryVipRepo(levels ...domain.VipLevel) *inMemoryVipRepo {
	r := &inMemoryVipRepo{
		levels:       make(map[int]*domain.VipLevel),
		applications: make(map[uuid.UUID]*domain.VipApplication),
	}
	for i := range levels {
		l := levels[i]
		r.levels[l.Level] = &l
	}
	return r
}

func (r *inMemoryVipRepo) ListLevels(ctx context.Context) ([]domain.VipLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.VipLevel
	for _, l := range r.levels {
		result = append(result, *l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (r *inMemoryVipRepo) GetLevel(ctx context.Context, level int) (*domain.VipLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.levels[level]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

func (r *inMemoryVipRepo) CreateApplication(ctx context.Context, a *domain.VipApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.applications[a.ID] = &c
	return nil
}

func (r *inMemoryVipRepo) GetApplicationByID(ctx context.Context, id uuid.UUID) (*domain.VipApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.applications[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (r *inMemoryVipRepo) GetApplicationByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VipApplication, error) {
	return r.GetApplicationByID(ctx, id)
}

func (r *inMemoryVipRepo) HasPendingApplication(ctx context.Context, merchantID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.applications {
		if a.MerchantID == merchantID && a.Status == domain.VipApplicationPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryVipRepo) SetApplicationReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.VipApplicationStatus, reviewer uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.applications[id]
	if !ok {
		return fmt.Errorf("vip application not found")
	}
	a.Status = status
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &at
	return nil
}

func (r *inMemoryVipRepo) ListApplications(ctx context.Context, params ports.RequestListParams) ([]domain.VipApplication, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.VipApplication
	for _, a := range r.applications {
		if params.MerchantID != nil && a.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != "" && string(a.Status) != params.Status {
			continue
		}
		result = append(result, *a)
	}
	return paginate(result, params.Page, params.PageSize)
}

// --- In-Memory Attendance Repo ---

type inMemoryAttendanceRepo struct {
	mu      sync.RWMutex
	signIns map[string]*domain.Attendance // "merchant_id:date"
}

func newInMemoryAttendanceRepo() *inMemoryAttendanceRepo {
	return &inMemoryAttendanceRepo{signIns: make(map[string]*domain.Attendance)}
}

func (r *inMemoryAttendanceRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Attendance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := a.MerchantID.String() + ":" + a.SignInDate
	if _, ok := r.signIns[key]; ok {
		return fmt.Errorf("already signed in")
	}
	c := *a
	r.signIns[key] = &c
	return nil
}

func (r *inMemoryAttendanceRepo) Exists(ctx context.Context, merchantID uuid.UUID, signInDate string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.signIns[merchantID.String()+":"+signInDate]
	return ok, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.IdempotencyLog
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{logs: make(map[string]*domain.IdempotencyLog)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *log
	r.logs[log.Key] = &c
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes transactions with one mutex, standing
// in for the merchant row lock that Postgres provides via SELECT FOR
// UPDATE. Concurrency tests can therefore assert exact outcomes.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx is a no-op pgx.Tx that releases the transactor mutex on the
// first Commit or Rollback. Services defer Rollback after Commit, so
// the release must be idempotent.
type serialTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *serialTx) unlock() {
	t.once.Do(t.release.Unlock)
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) Commit(ctx context.Context) error          { t.unlock(); return nil }
func (t *serialTx) Rollback(ctx context.Context) error        { t.unlock(); return nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }

// --- helpers ---

func paginate[T any](items []T, page, pageSize int) ([]T, int64, error) {
	total := int64(len(items))
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, total, nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}
