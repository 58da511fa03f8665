package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/services"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/shopspring/decimal"
)

// LineRequest represents the request body for adding a quotation line
type LineRequest struct {
	Code        string          `json:"code" binding:"required"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	VATPct      decimal.Decimal `json:"vat_pct"`
	InStock     bool            `json:"in_stock"`
}

// LinePatchRequest edits a line; omitted fields are kept
type LinePatchRequest struct {
	Code        *string          `json:"code"`
	Description *string          `json:"description"`
	Quantity    *int             `json:"quantity" binding:"omitempty,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	DiscountPct *decimal.Decimal `json:"discount_pct"`
	VATPct      *decimal.Decimal `json:"vat_pct"`
}

// StockRequest toggles a line's in-stock flag
type StockRequest struct {
	InStock *bool `json:"in_stock" binding:"required"`
}

// GetQuotation handles GET /api/v1/orders/:id/quotation
func (oc *OrderController) GetQuotation(c *gin.Context) {
	view, err := oc.orders.Quotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, view)
}

// UpdateQuotation handles PUT /api/v1/orders/:id/quotation
func (oc *OrderController) UpdateQuotation(c *gin.Context) {
	var req QuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	res, err := oc.orders.UpdateQuotation(c.Request.Context(), c.Param("id"), services.QuotationUpdate{
		ShippingPrice: req.ShippingPrice,
		IsRework:      req.IsRework,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// SendQuotation handles POST /api/v1/orders/:id/quotation/send
func (oc *OrderController) SendQuotation(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	res, err := oc.orders.SendQuotation(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// RecordClientDecision handles POST /api/v1/orders/:id/quotation/decision
func (oc *OrderController) RecordClientDecision(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	res, err := oc.orders.RecordClientDecision(c.Request.Context(), c.Param("id"), actor, *req.Accepted)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// AddLine handles POST /api/v1/orders/:id/lines
func (oc *OrderController) AddLine(c *gin.Context) {
	var req LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	line, res, err := oc.orders.AddLine(c.Request.Context(), c.Param("id"), services.LineInput{
		Code:        req.Code,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		DiscountPct: req.DiscountPct,
		VATPct:      req.VATPct,
		InStock:     req.InStock,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, gin.H{
		"line":  line,
		"order": newOrderResponse(res.Order, res.Transition),
	})
}

// UpdateLine handles PATCH /api/v1/orders/:id/lines/:lineId. Edits are
// debounced, so the response only confirms they were queued.
func (oc *OrderController) UpdateLine(c *gin.Context) {
	var req LinePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	id, lineID := c.Param("id"), c.Param("lineId")
	err := oc.orders.UpdateLine(c.Request.Context(), id, lineID, services.LinePatch{
		Code:        req.Code,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		DiscountPct: req.DiscountPct,
		VATPct:      req.VATPct,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	pending, _ := oc.orders.PendingLineEdit(id, lineID)
	utils.RespondSuccess(c, http.StatusAccepted, gin.H{"queued": true, "pending": pending})
}

// SetLineStock handles PUT /api/v1/orders/:id/lines/:lineId/stock
func (oc *OrderController) SetLineStock(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	res, err := oc.orders.SetLineStock(c.Request.Context(), c.Param("id"), c.Param("lineId"), *req.InStock)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// DeleteLine handles DELETE /api/v1/orders/:id/lines/:lineId
func (oc *OrderController) DeleteLine(c *gin.Context) {
	res, err := oc.orders.DeleteLine(c.Request.Context(), c.Param("id"), c.Param("lineId"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}
