package dto

// DispatchLine is one product reference in a dispatch request.
type DispatchLine struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// DispatchRequest is the request body for dispatching one order.
type DispatchRequest struct {
	MerchantCode   string         `json:"merchant_code" binding:"required,safe_id"`
	Lines          []DispatchLine `json:"lines" binding:"required,min=1,dive"`
	CompletionDays int            `json:"completion_days" binding:"omitempty,gte=1,lte=30"`
}

// BulkDispatchRequest dispatches several orders in one call.
type BulkDispatchRequest struct {
	Orders []DispatchRequest `json:"orders" binding:"required,min=1,dive"`
}

// BulkShipRequest optionally scopes a bulk ship to one merchant.
type BulkShipRequest struct {
	MerchantID *string `json:"merchant_id,omitempty" binding:"omitempty,uuid"`
}

// SubmitRechargeRequest is the request body for a top-up submission.
type SubmitRechargeRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Method         string `json:"method" binding:"omitempty,max=32"`
	Currency       string `json:"currency" binding:"omitempty,len=3"`
	Voucher        string `json:"voucher" binding:"omitempty,max=512"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64,safe_id"`
}

// ReviewRequest approves or rejects a pending request.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

// SubmitWithdrawalRequest is the request body for a cash-out submission.
type SubmitWithdrawalRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Method        string `json:"method" binding:"required,oneof=bankCard blockchain"`
	Currency      string `json:"currency" binding:"omitempty,len=3"`
	FundsPassword string `json:"funds_password" binding:"required,min=6,max=128"`

	AccountName    string `json:"account_name" binding:"omitempty,max=100"`
	BankCardNumber string `json:"bank_card_number" binding:"omitempty,max=32"`
	BankName       string `json:"bank_name" binding:"omitempty,max=100"`

	Network       string `json:"network" binding:"omitempty,max=32"`
	WalletAddress string `json:"wallet_address" binding:"omitempty,max=128"`

	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64,safe_id"`
}

// CancelWithdrawalRequest carries the rejection reason.
type CancelWithdrawalRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// ApplyVipRequest is the request body for a tier upgrade application.
type ApplyVipRequest struct {
	Level         int    `json:"level" binding:"required,gte=1,lte=6"`
	FundsPassword string `json:"funds_password" binding:"required,min=6,max=128"`
}

// AdjustWalletRequest is the admin add/deduct body. Amount is signed:
// positive credits, negative debits.
type AdjustWalletRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	Amount     int64  `json:"amount" binding:"required"`
	LinkedID   string `json:"linked_id" binding:"omitempty,max=64"`
}

// WalletBalanceResponse is the response for a balance query.
type WalletBalanceResponse struct {
	Balance       int64 `json:"balance"`
	PendingAmount int64 `json:"pending_amount"`
}

// BulkCountResponse reports how many rows a bulk operation changed.
type BulkCountResponse struct {
	Affected int64 `json:"affected"`
}

// ListResponse wraps a paginated collection.
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
