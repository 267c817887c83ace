package handler

import (
	"strconv"

	"marketplace-ledger/internal/adapter/http/dto"
	"marketplace-ledger/internal/adapter/http/middleware"
	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"
	"marketplace-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	orderSvc ports.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// ctxMerchantID extracts the authenticated merchant from the context.
func ctxMerchantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}

// pageParams parses the page/page_size query parameters.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func toDispatchRequest(req dto.DispatchRequest) (ports.DispatchRequest, error) {
	out := ports.DispatchRequest{
		MerchantCode:   req.MerchantCode,
		CompletionDays: req.CompletionDays,
	}
	for _, line := range req.Lines {
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return ports.DispatchRequest{}, err
		}
		out.Lines = append(out.Lines, ports.DispatchLine{ProductID: productID, Quantity: line.Quantity})
	}
	return out, nil
}

// Dispatch handles POST /api/v1/orders/dispatch.
func (h *OrderHandler) Dispatch(c *gin.Context) {
	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	svcReq, err := toDispatchRequest(req)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	order, err := h.orderSvc.Dispatch(c.Request.Context(), svcReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// DispatchBulk handles POST /api/v1/orders/dispatch-bulk.
func (h *OrderHandler) DispatchBulk(c *gin.Context) {
	var req dto.BulkDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	svcReqs := make([]ports.DispatchRequest, 0, len(req.Orders))
	for _, item := range req.Orders {
		svcReq, err := toDispatchRequest(item)
		if err != nil {
			response.Error(c, apperror.Validation("invalid product id"))
			return
		}
		svcReqs = append(svcReqs, svcReq)
	}

	orders, failures := h.orderSvc.DispatchBulk(c.Request.Context(), svcReqs)
	response.OK(c, gin.H{"orders": orders, "failures": failures})
}

// Pickup handles PUT /api/v1/orders/:id/pickup.
func (h *OrderHandler) Pickup(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	orderID, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.Pickup(c.Request.Context(), orderID, merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// BulkShip handles PUT /api/v1/orders/bulk-ship.
func (h *OrderHandler) BulkShip(c *gin.Context) {
	var req dto.BulkShipRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var merchantID *uuid.UUID
	if req.MerchantID != nil {
		id, err := uuid.Parse(*req.MerchantID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid merchant id"))
			return
		}
		merchantID = &id
	}

	affected, err := h.orderSvc.BulkShip(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BulkCountResponse{Affected: affected})
}

// ConfirmProfit handles PUT /api/v1/orders/:id/confirm-profit.
func (h *OrderHandler) ConfirmProfit(c *gin.Context) {
	orderID, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.ConfirmProfit(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// BulkComplete handles PUT /api/v1/orders/bulk-complete.
func (h *OrderHandler) BulkComplete(c *gin.Context) {
	affected, err := h.orderSvc.BulkComplete(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BulkCountResponse{Affected: affected})
}

// Cancel handles PUT /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.Cancel(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// Get handles GET /api/v1/orders/:id. Merchants may only read their
// own orders; admins may read any.
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, err := pathID(c)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.GetByID(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.GetString(middleware.CtxRole) != middleware.RoleAdmin {
		merchantID, ok := ctxMerchantID(c)
		if !ok || order.MerchantID != merchantID {
			response.Error(c, apperror.ErrNotYours())
			return
		}
	}
	response.OK(c, order)
}

// List handles GET /api/v1/orders (admin, unscoped).
func (h *OrderHandler) List(c *gin.Context) {
	params, err := h.listParams(c, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondList(c, params)
}

// ListMine handles GET /api/v1/orders/my (merchant-scoped).
func (h *OrderHandler) ListMine(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	params, err := h.listParams(c, &merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondList(c, params)
}

func (h *OrderHandler) listParams(c *gin.Context, merchantID *uuid.UUID) (ports.OrderListParams, error) {
	page, pageSize := pageParams(c)
	params := ports.OrderListParams{
		MerchantID: merchantID,
		OrderSN:    c.Query("order_sn"),
		Page:       page,
		PageSize:   pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.OrderStatus(s)
		params.Status = &status
	}
	if merchantID == nil {
		if m := c.Query("merchant_id"); m != "" {
			id, err := uuid.Parse(m)
			if err != nil {
				return params, apperror.Validation("invalid merchant id")
			}
			params.MerchantID = &id
		}
	}
	return params, nil
}

func (h *OrderHandler) respondList(c *gin.Context, params ports.OrderListParams) {
	orders, total, err := h.orderSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ListResponse{
		Items:    orders,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}
