package handler

import (
	"marketplace-ledger/internal/adapter/http/dto"
	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"
	"marketplace-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WithdrawalHandler handles cash-out endpoints.
type WithdrawalHandler struct {
	withdrawalSvc ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawalSvc ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalSvc: withdrawalSvc}
}

// Submit handles POST /api/v1/withdrawals. The request body is not
// sanitized: the funds password must reach the verifier untouched.
func (h *WithdrawalHandler) Submit(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SubmitWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	withdrawal, err := h.withdrawalSvc.Submit(c.Request.Context(), ports.SubmitWithdrawalRequest{
		MerchantID:     merchantID,
		Amount:         req.Amount,
		Method:         domain.WithdrawalMethod(req.Method),
		Currency:       req.Currency,
		AccountName:    req.AccountName,
		BankCardNumber: req.BankCardNumber,
		BankName:       req.BankName,
		Network:        req.Network,
		WalletAddress:  req.WalletAddress,
		FundsPassword:  req.FundsPassword,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, withdrawal)
}

// Approve handles PUT /api/v1/withdrawals/:id/approve (admin).
func (h *WithdrawalHandler) Approve(c *gin.Context) {
	reviewer, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid withdrawal id"))
		return
	}

	withdrawal, err := h.withdrawalSvc.Approve(c.Request.Context(), id, reviewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, withdrawal)
}

// Cancel handles PUT /api/v1/withdrawals/:id/cancel (admin). The held
// amount returns to the merchant's wallet.
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	reviewer, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid withdrawal id"))
		return
	}

	var req dto.CancelWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	withdrawal, err := h.withdrawalSvc.Cancel(c.Request.Context(), id, req.Reason, reviewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, withdrawal)
}

// List handles GET /api/v1/withdrawals.
func (h *WithdrawalHandler) List(c *gin.Context) {
	params, err := requestListParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, total, err := h.withdrawalSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ListResponse{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}
