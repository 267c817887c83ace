package handler

import (
	"marketplace-ledger/internal/adapter/http/dto"
	"marketplace-ledger/internal/adapter/http/middleware"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"
	"marketplace-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RechargeHandler handles top-up endpoints.
type RechargeHandler struct {
	rechargeSvc ports.RechargeService
}

// NewRechargeHandler creates a new RechargeHandler.
func NewRechargeHandler(rechargeSvc ports.RechargeService) *RechargeHandler {
	return &RechargeHandler{rechargeSvc: rechargeSvc}
}

// Submit handles POST /api/v1/recharges.
func (h *RechargeHandler) Submit(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SubmitRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	recharge, err := h.rechargeSvc.Submit(c.Request.Context(), ports.SubmitRechargeRequest{
		MerchantID:     merchantID,
		Amount:         req.Amount,
		Method:         req.Method,
		Currency:       req.Currency,
		Voucher:        req.Voucher,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, recharge)
}

// Review handles PUT /api/v1/recharges/:id/review (admin).
func (h *RechargeHandler) Review(c *gin.Context) {
	reviewer, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid recharge id"))
		return
	}

	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	recharge, err := h.rechargeSvc.Review(c.Request.Context(), id, req.Approve, reviewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, recharge)
}

// List handles GET /api/v1/recharges. Merchants see their own
// requests; admins may filter by merchant.
func (h *RechargeHandler) List(c *gin.Context) {
	params, err := requestListParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, total, err := h.rechargeSvc.List(c.Request.Context(), params)
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

// requestListParams builds workflow listing params, scoping merchants
// to their own records.
func requestListParams(c *gin.Context) (ports.RequestListParams, error) {
	page, pageSize := pageParams(c)
	params := ports.RequestListParams{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	}

	if c.GetString(middleware.CtxRole) == middleware.RoleAdmin {
		if m := c.Query("merchant_id"); m != "" {
			id, err := uuid.Parse(m)
			if err != nil {
				return params, apperror.Validation("invalid merchant id")
			}
			params.MerchantID = &id
		}
		return params, nil
	}

	merchantID, ok := ctxMerchantID(c)
	if !ok {
		return params, apperror.ErrInvalidToken()
	}
	params.MerchantID = &merchantID
	return params, nil
}
