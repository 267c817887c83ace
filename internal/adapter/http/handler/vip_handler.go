package handler

import (
	"marketplace-ledger/internal/adapter/http/dto"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"
	"marketplace-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// VipHandler handles tier listing and upgrade endpoints.
type VipHandler struct {
	vipSvc ports.VipService
}

// NewVipHandler creates a new VipHandler.
func NewVipHandler(vipSvc ports.VipService) *VipHandler {
	return &VipHandler{vipSvc: vipSvc}
}

// Levels handles GET /api/v1/vip/levels.
func (h *VipHandler) Levels(c *gin.Context) {
	levels, err := h.vipSvc.Levels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, levels)
}

// Apply handles POST /api/v1/vip/applications.
func (h *VipHandler) Apply(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.ApplyVipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	app, err := h.vipSvc.Apply(c.Request.Context(), ports.ApplyVipRequest{
		MerchantID:     merchantID,
		RequestedLevel: req.Level,
		FundsPassword:  req.FundsPassword,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Review handles PUT /api/v1/vip/applications/:id/review (admin).
func (h *VipHandler) Review(c *gin.Context) {
	reviewer, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid application id"))
		return
	}

	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	app, err := h.vipSvc.Review(c.Request.Context(), id, req.Approve, reviewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// ListApplications handles GET /api/v1/vip/applications.
func (h *VipHandler) ListApplications(c *gin.Context) {
	params, err := requestListParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, total, err := h.vipSvc.ListApplications(c.Request.Context(), params)
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
