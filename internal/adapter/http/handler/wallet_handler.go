package handler

import (
	"time"

	"marketplace-ledger/internal/adapter/http/dto"
	"marketplace-ledger/internal/core/domain"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/pkg/apperror"
	"marketplace-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles balance, ledger and admin adjustment endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, pending, err := h.ledgerSvc.GetBalance(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WalletBalanceResponse{Balance: balance, PendingAmount: pending})
}

// ListEntries handles GET /api/v1/wallet/entries.
func (h *WalletHandler) ListEntries(c *gin.Context) {
	merchantID, ok := ctxMerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, pageSize := pageParams(c)
	params := ports.LedgerListParams{
		MerchantID: merchantID,
		Page:       page,
		PageSize:   pageSize,
	}
	if s := c.Query("type"); s != "" {
		entryType := domain.EntryType(s)
		if !domain.ValidEntryType(entryType) {
			response.Error(c, apperror.ErrInvalidEntryType())
			return
		}
		params.Type = &entryType
	}
	if s := c.Query("from"); s != "" {
		from, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid from timestamp"))
			return
		}
		params.From = &from
	}
	if s := c.Query("to"); s != "" {
		to, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid to timestamp"))
			return
		}
		params.To = &to
	}

	entries, total, err := h.ledgerSvc.ListEntries(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ListResponse{
		Items:    entries,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// Adjust handles POST /api/v1/wallet/adjust (admin). Positive amounts
// credit as adminAdd, negative amounts debit as adminDeduct.
func (h *WalletHandler) Adjust(c *gin.Context) {
	var req dto.AdjustWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant id"))
		return
	}

	var entry *domain.LedgerEntry
	if req.Amount > 0 {
		entry, err = h.ledgerSvc.Credit(c.Request.Context(), ports.LedgerRequest{
			MerchantID: merchantID,
			Amount:     req.Amount,
			Type:       domain.EntryAdminAdd,
			LinkedID:   req.LinkedID,
		})
	} else {
		entry, err = h.ledgerSvc.Debit(c.Request.Context(), ports.LedgerRequest{
			MerchantID: merchantID,
			Amount:     -req.Amount,
			Type:       domain.EntryAdminDeduct,
			LinkedID:   req.LinkedID,
		})
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
