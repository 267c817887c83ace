package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "marketplace-ledger/internal/adapter/http/handler"
	redisStorage "marketplace-ledger/internal/adapter/storage/redis"
	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/service"
	"marketplace-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testApp builds the full stack over in-memory repos and miniredis:
// real HTTP layer, middleware, handlers, services and Redis stores.
// Tokens are minted directly because auth lives outside this system.

const (
	testJWTSecret     = "integration-test-secret-key"
	testIssuer        = "marketplace-ledger-test"
	testFundsPassword = "funds-pw-123456"
	testSignInReward  = int64(1500)
)

type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	merchants *inMemoryMerchantRepo
	products  *inMemoryProductRepo
	orders    *inMemoryOrderRepo
	verifier  *service.BcryptFundsPasswordVerifier
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	merchantRepo := newInMemoryMerchantRepo()
	entryRepo := newInMemoryLedgerEntryRepo()
	orderRepo := newInMemoryOrderRepo()
	productRepo := newInMemoryProductRepo()
	rechargeRepo := newInMemoryRechargeRepo()
	withdrawalRepo := newInMemoryWithdrawalRepo()
	vipRepo := newInMemoryVipRepo(
		domain.VipLevel{Level: 1, Name: "VIP1", Price: 10000, RateBps: 2000, Active: true},
		domain.VipLevel{Level: 2, Name: "VIP2", Price: 20000, RateBps: 2500, Active: true},
		domain.VipLevel{Level: 3, Name: "VIP3", Price: 30000, RateBps: 2700, Active: true},
	)
	attendanceRepo := newInMemoryAttendanceRepo()
	idempotencyRepo := newInMemoryIdempotencyRepo()
	transactor := newInMemoryTransactor()

	log := logger.NewWithWriter("error", io.Discard)
	verifier := service.NewBcryptFundsPasswordVerifier(bcrypt.MinCost)
	tokenSvc := service.NewJWTTokenService(testJWTSecret, testIssuer)

	ledgerSvc := service.NewLedgerService(merchantRepo, entryRepo, transactor, log)
	orderSvc := service.NewOrderService(orderRepo, merchantRepo, productRepo, ledgerSvc, transactor, 3, log)
	rechargeSvc := service.NewRechargeService(rechargeRepo, merchantRepo, ledgerSvc, idempotencyRepo, idempotencyCache, transactor, log)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, merchantRepo, ledgerSvc, verifier, idempotencyRepo, idempotencyCache, transactor, log)
	vipSvc := service.NewVipService(vipRepo, merchantRepo, ledgerSvc, verifier, transactor, log)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, merchantRepo, ledgerSvc, transactor, testSignInReward, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		OrderSvc:       orderSvc,
		RechargeSvc:    rechargeSvc,
		WithdrawalSvc:  withdrawalSvc,
		VipSvc:         vipSvc,
		AttendanceSvc:  attendanceSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:    server,
		redis:     mr,
		merchants: merchantRepo,
		products:  productRepo,
		orders:    orderRepo,
		verifier:  verifier,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- Helpers ---

func mintToken(t *testing.T, merchantID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  merchantID.String(),
		"role": role,
		"iss":  testIssuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func adminToken(t *testing.T) string {
	return mintToken(t, uuid.New(), "admin")
}

func (a *testApp) seedMerchant(t *testing.T, code string, balance int64) *domain.Merchant {
	t.Helper()
	hash, err := a.verifier.Hash(testFundsPassword)
	require.NoError(t, err)
	m := &domain.Merchant{
		ID:                uuid.New(),
		MerchantCode:      code,
		StoreName:         code + " Store",
		VipLevel:          1,
		Balance:           balance,
		CreditScore:       domain.MaxCreditScore,
		StarRating:        4.0,
		Status:            domain.MerchantStatusApproved,
		FundsPasswordHash: hash,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, a.merchants.Create(context.Background(), m))
	return m
}

func (a *testApp) seedProduct(t *testing.T, title string, cost, sales int64) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID:         uuid.New(),
		Title:      title,
		CostPrice:  cost,
		SalesPrice: sales,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, a.products.Create(context.Background(), p))
	return p
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// decodeData closes the body and returns the "data" object of the
// standard success envelope.
func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (a *testApp) walletBalance(t *testing.T, token string) (balance, pending int64) {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	return int64(data["balance"].(float64)), int64(data["pending_amount"].(float64))
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_Unauthorized(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_RoleEnforcement(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-ROLE", 0)
	merchantTok := mintToken(t, m.ID, "merchant")

	// Dispatch is admin-only.
	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", merchantTok, map[string]any{
		"merchant_code": "M-ROLE",
		"lines":         []map[string]any{{"product_id": uuid.New().String(), "quantity": 1}},
	})
	body := readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "ACC_001")

	// Pickup is merchant-only.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+uuid.New().String()+"/pickup", adminToken(t), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-LIFE", 100000)
	p := app.seedProduct(t, "Widget", 25000, 38000)

	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	// Admin dispatches one order.
	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
		"merchant_code":   "M-LIFE",
		"lines":           []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
		"completion_days": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeData(t, resp)
	orderID := order["id"].(string)
	assert.Equal(t, "pendingPayment", order["status"])
	assert.Equal(t, float64(25000), order["total_cost"])
	assert.Equal(t, float64(38000), order["selling_price"])
	// VIP 1 rate is 20%.
	assert.Equal(t, float64(7600), order["earnings"])

	// Merchant pays the cost price on pickup; selling price goes pending.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/pickup", merchant, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	picked := decodeData(t, resp)
	assert.Equal(t, "pendingShipment", picked["status"])

	balance, pending := app.walletBalance(t, merchant)
	assert.Equal(t, int64(75000), balance)
	assert.Equal(t, int64(38000), pending)

	// Admin ships everything pending shipment.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/bulk-ship", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	shipped := decodeData(t, resp)
	assert.Equal(t, float64(1), shipped["affected"])

	// Admin confirms profit; the earnings fixed at dispatch are released.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/confirm-profit", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decodeData(t, resp)
	assert.Equal(t, "completed", completed["status"])
	assert.Equal(t, true, completed["profit_confirmed"])

	balance, pending = app.walletBalance(t, merchant)
	assert.Equal(t, int64(82600), balance) // 100000 - 25000 + 7600
	assert.Equal(t, int64(0), pending)

	// A second confirmation must be rejected and write nothing.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/confirm-profit", admin, nil)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "STA_002")

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(82600), balance)

	// The ledger holds exactly the payment debit and the profit credit.
	resp = app.do(t, http.MethodGet, "/api/v1/wallet/entries", merchant, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeData(t, resp)
	assert.Equal(t, float64(2), entries["total"])
}

func TestIntegration_OrderCancelRefundsCostBasis(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-CANCEL", 50000)
	p := app.seedProduct(t, "Gadget", 20000, 30000)

	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
		"merchant_code": "M-CANCEL",
		"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := decodeData(t, resp)["id"].(string)

	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/pickup", merchant, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cancelling a paid order refunds the cost basis, not the earnings.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/cancel", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeData(t, resp)
	assert.Equal(t, "cancelled", cancelled["status"])

	balance, pending := app.walletBalance(t, merchant)
	assert.Equal(t, int64(50000), balance)
	assert.Equal(t, int64(0), pending)

	// Cancelling again hits the terminal-state guard.
	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/cancel", admin, nil)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "STA_003")
}

func TestIntegration_PickupInsufficientFunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-POOR", 1000)
	p := app.seedProduct(t, "Pricey", 20000, 30000)

	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
		"merchant_code": "M-POOR",
		"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := decodeData(t, resp)["id"].(string)

	resp = app.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/pickup", merchant, nil)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Contains(t, body, "FND_001")

	// The failed pickup must leave the wallet and the order untouched.
	balance, pending := app.walletBalance(t, merchant)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(0), pending)

	resp = app.do(t, http.MethodGet, "/api/v1/orders/"+orderID, merchant, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pendingPayment", decodeData(t, resp)["status"])
}

func TestIntegration_RechargeFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-RCH", 0)
	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	submit := map[string]any{
		"amount":          50000,
		"voucher":         "tx-proof-123",
		"idempotency_key": "rch-key-001",
	}
	resp := app.do(t, http.MethodPost, "/api/v1/recharges", merchant, submit)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	recharge := decodeData(t, resp)
	rechargeID := recharge["id"].(string)
	rechargeSN := recharge["recharge_sn"].(string)
	assert.Equal(t, "pending", recharge["status"])
	assert.Equal(t, "USDT", recharge["method"])
	assert.Equal(t, "USD", recharge["currency"])

	// Submission alone credits nothing.
	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(0), balance)

	// A retry with the same idempotency key replays the original record.
	resp = app.do(t, http.MethodPost, "/api/v1/recharges", merchant, submit)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	replayed := decodeData(t, resp)
	assert.Equal(t, rechargeSN, replayed["recharge_sn"])

	// Approval credits the wallet exactly once.
	resp = app.do(t, http.MethodPut, "/api/v1/recharges/"+rechargeID+"/review", admin, map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reviewed := decodeData(t, resp)
	assert.Equal(t, "approved", reviewed["status"])

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(50000), balance)

	// A second review attempt is rejected.
	resp = app.do(t, http.MethodPut, "/api/v1/recharges/"+rechargeID+"/review", admin, map[string]any{"approve": true})
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "STA_004")

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(50000), balance)
}

func TestIntegration_WithdrawalFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-WTH", 10000)
	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/withdrawals", merchant, map[string]any{
		"amount":         3000,
		"method":         "bankCard",
		"funds_password": testFundsPassword,
		"account_name":   "Store Owner",
		"bank_name":      "Test Bank",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	withdrawal := decodeData(t, resp)
	withdrawalID := withdrawal["id"].(string)
	assert.Equal(t, "underReview", withdrawal["status"])

	// The hold debits the wallet at submission.
	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(7000), balance)

	// Cancellation returns the held funds.
	resp = app.do(t, http.MethodPut, "/api/v1/withdrawals/"+withdrawalID+"/cancel", admin, map[string]any{
		"reason": "voucher mismatch",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeData(t, resp)
	assert.Equal(t, "rejected", cancelled["status"])

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(10000), balance)

	// A second withdrawal, approved this time: no further ledger effect.
	resp = app.do(t, http.MethodPost, "/api/v1/withdrawals", merchant, map[string]any{
		"amount":         4000,
		"method":         "blockchain",
		"funds_password": testFundsPassword,
		"network":        "TRC20",
		"wallet_address": "TXyz123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	secondID := decodeData(t, resp)["id"].(string)

	resp = app.do(t, http.MethodPut, "/api/v1/withdrawals/"+secondID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decodeData(t, resp)
	assert.Equal(t, "withdrawn", approved["status"])

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(6000), balance)
}

func TestIntegration_WithdrawalWrongFundsPassword(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-WPW", 10000)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/withdrawals", merchant, map[string]any{
		"amount":         3000,
		"method":         "bankCard",
		"funds_password": "wrong-password",
	})
	body := readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "ACC_004")

	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(10000), balance)
}

func TestIntegration_VipUpgradeFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-VIP", 25000)
	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	// Levels are visible to any role.
	resp := app.do(t, http.MethodGet, "/api/v1/vip/levels", merchant, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPost, "/api/v1/vip/applications", merchant, map[string]any{
		"level":          2,
		"funds_password": testFundsPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	application := decodeData(t, resp)
	appID := application["id"].(string)
	assert.Equal(t, "pendingReview", application["status"])
	assert.Equal(t, float64(20000), application["price"])

	// Submission holds nothing; the debit happens at approval.
	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(25000), balance)

	resp = app.do(t, http.MethodPut, "/api/v1/vip/applications/"+appID+"/review", admin, map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reviewed := decodeData(t, resp)
	assert.Equal(t, "approved", reviewed["status"])

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, int64(5000), balance)

	// The tier upgrade raises the earnings rate for future dispatches.
	p := app.seedProduct(t, "Post-upgrade", 1000, 10000)
	resp = app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
		"merchant_code": "M-VIP",
		"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeData(t, resp)
	assert.Equal(t, float64(2500), order["earnings"]) // 10000 * 25%
}

func TestIntegration_AttendanceSignIn(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-ATT", 0)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/attendance/sign-in", merchant, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	signIn := decodeData(t, resp)
	assert.Equal(t, float64(testSignInReward), signIn["reward"])

	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, testSignInReward, balance)

	// Same day, second attempt.
	resp = app.do(t, http.MethodPost, "/api/v1/attendance/sign-in", merchant, nil)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "STA_001")

	balance, _ = app.walletBalance(t, merchant)
	assert.Equal(t, testSignInReward, balance)
}

func TestIntegration_WalletAdjust(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-ADJ", 1000)
	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/wallet/adjust", admin, map[string]any{
		"merchant_id": m.ID.String(),
		"amount":      2500,
		"linked_id":   "manual-correction-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decodeData(t, resp)
	assert.Equal(t, "adminAdd", entry["type"])
	assert.Equal(t, float64(3500), entry["balance_after"])

	resp = app.do(t, http.MethodPost, "/api/v1/wallet/adjust", admin, map[string]any{
		"merchant_id": m.ID.String(),
		"amount":      -500,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry = decodeData(t, resp)
	assert.Equal(t, "adminDeduct", entry["type"])

	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(3000), balance)

	// Deducting past zero is refused.
	resp = app.do(t, http.MethodPost, "/api/v1/wallet/adjust", admin, map[string]any{
		"merchant_id": m.ID.String(),
		"amount":      -99999,
	})
	body := readBody(t, resp)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Contains(t, body, "FND_001")
}

func TestIntegration_OrderListScoping(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m1 := app.seedMerchant(t, "M-LIST-1", 0)
	app.seedMerchant(t, "M-LIST-2", 0)
	p := app.seedProduct(t, "Thing", 100, 200)

	admin := adminToken(t)
	for _, code := range []string{"M-LIST-1", "M-LIST-1", "M-LIST-2"} {
		resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
			"merchant_code": code,
			"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	// Merchants only ever see their own orders.
	merchant1 := mintToken(t, m1.ID, "merchant")
	resp := app.do(t, http.MethodGet, "/api/v1/orders/my", merchant1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mine := decodeData(t, resp)
	assert.Equal(t, float64(2), mine["total"])

	// Admins see everything.
	resp = app.do(t, http.MethodGet, "/api/v1/orders", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeData(t, resp)
	assert.Equal(t, float64(3), all["total"])

	// The admin listing is closed to merchants.
	resp = app.do(t, http.MethodGet, "/api/v1/orders", merchant1, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_ExpiredTokenRejected(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-EXP", 0)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  m.ID.String(),
		"role": "merchant",
		"iss":  testIssuer,
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	resp := app.do(t, http.MethodGet, "/api/v1/wallet/balance", signed, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_RateLimitExhaustion(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-RATE", 0)
	merchant := mintToken(t, m.ID, "merchant")

	// The attendance group allows 5 requests per minute.
	var limited bool
	for i := 0; i < 7; i++ {
		resp := app.do(t, http.MethodPost, "/api/v1/attendance/sign-in", merchant, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			body := readBody(t, resp)
			assert.Contains(t, body, "RATE_001")
			limited = true
			break
		}
		resp.Body.Close()
	}
	assert.True(t, limited, "expected the rate limiter to trip within 7 requests")
}

func TestIntegration_DispatchBulkPartialFailure(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.seedMerchant(t, "M-BULK", 0)
	p := app.seedProduct(t, "Bulk item", 100, 200)
	admin := adminToken(t)

	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch-bulk", admin, map[string]any{
		"orders": []map[string]any{
			{
				"merchant_code": "M-BULK",
				"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 2}},
			},
			{
				"merchant_code": "M-MISSING",
				"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	var envelope struct {
		Data struct {
			Orders   []map[string]interface{} `json:"orders"`
			Failures []map[string]interface{} `json:"failures"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Len(t, envelope.Data.Orders, 1)
	require.Len(t, envelope.Data.Failures, 1)
	assert.Equal(t, "M-MISSING", envelope.Data.Failures[0]["merchant_code"])
}

func TestIntegration_SweeperCancelsExpiredOrders(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	m := app.seedMerchant(t, "M-SWEEP", 100000)
	p := app.seedProduct(t, "Slow mover", 1000, 2000)
	admin := adminToken(t)
	merchant := mintToken(t, m.ID, "merchant")

	resp := app.do(t, http.MethodPost, "/api/v1/orders/dispatch", admin, map[string]any{
		"merchant_code": "M-SWEEP",
		"lines":         []map[string]any{{"product_id": p.ID.String(), "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID, err := uuid.Parse(decodeData(t, resp)["id"].(string))
	require.NoError(t, err)

	// Push the deadline into the past, then sweep.
	ctx := context.Background()
	stored, err := app.orders.GetByID(ctx, orderID)
	require.NoError(t, err)
	stored.PickupDeadline = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, app.orders.Create(ctx, nil, stored))

	n, err := app.orders.CancelExpired(ctx, time.Now().UTC(), domain.CancelReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The expired order can no longer be picked up.
	resp = app.do(t, http.MethodPut, fmt.Sprintf("/api/v1/orders/%s/pickup", orderID), merchant, nil)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "STA_001")

	balance, _ := app.walletBalance(t, merchant)
	assert.Equal(t, int64(100000), balance)
}
