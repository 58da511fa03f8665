package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/services"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderController serves the order workflow endpoints
type OrderController struct {
	orders      *services.OrderService
	attachments *services.AttachmentService
	hub         *services.Hub
	logger      *zap.Logger
}

// NewOrderController creates the controller. attachments and hub may be nil,
// which disables their routes.
func NewOrderController(orders *services.OrderService, attachments *services.AttachmentService, hub *services.Hub, logger *zap.Logger) *OrderController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderController{orders: orders, attachments: attachments, hub: hub, logger: logger}
}

// RegisterRoutes mounts every order route on rg.
func (oc *OrderController) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	orders.POST("", oc.CreateOrder)
	orders.GET("/:id", oc.GetOrder)
	orders.GET("/:id/permissions", oc.GetPermissions)
	orders.POST("/:id/advance", oc.Advance)
	orders.POST("/:id/retreat", oc.Retreat)
	orders.POST("/:id/finalize", oc.Finalize)
	orders.PUT("/:id/note", oc.SaveNote)
	orders.GET("/:id/comments", oc.ListComments)

	orders.GET("/:id/quotation", oc.GetQuotation)
	orders.PUT("/:id/quotation", oc.UpdateQuotation)
	orders.POST("/:id/quotation/send", oc.SendQuotation)
	orders.POST("/:id/quotation/decision", oc.RecordClientDecision)

	orders.POST("/:id/lines", oc.AddLine)
	orders.PATCH("/:id/lines/:lineId", oc.UpdateLine)
	orders.PUT("/:id/lines/:lineId/stock", oc.SetLineStock)
	orders.DELETE("/:id/lines/:lineId", oc.DeleteLine)

	if oc.attachments != nil {
		orders.POST("/:id/attachments", oc.UploadAttachment)
		orders.GET("/:id/attachments", oc.ListAttachments)
	}
	if oc.hub != nil {
		orders.GET("/:id/stream", oc.StreamOrder)
	}
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	Code        string `json:"code" binding:"omitempty,max=32"`
	CustomerID  string `json:"customer_id" binding:"required"`
	EquipmentID string `json:"equipment_id" binding:"required"`
	Note        string `json:"note"`
	IsRework    bool   `json:"is_rework"`
}

// RetreatRequest carries the mandatory reason for going back a phase
type RetreatRequest struct {
	Reason string `json:"reason"`
}

// NoteRequest is the autosaved general note
type NoteRequest struct {
	Note string `json:"note"`
}

// QuotationRequest edits order-level quotation fields; omitted fields are kept
type QuotationRequest struct {
	ShippingPrice *decimal.Decimal `json:"shipping_price"`
	IsRework      *bool            `json:"is_rework"`
}

// DecisionRequest records the client's answer to the quotation
type DecisionRequest struct {
	Accepted *bool `json:"accepted" binding:"required"`
}

// orderResponse is an order with the predicates the UI needs to render it.
type orderResponse struct {
	Order       *models.Order        `json:"order"`
	Permissions workflow.Permissions `json:"permissions"`
	Transition  *transitionResponse  `json:"transition,omitempty"`
}

type transitionResponse struct {
	From    workflow.Status `json:"from"`
	To      workflow.Status `json:"to"`
	Message string          `json:"message"`
}

func newOrderResponse(order *models.Order, tr *workflow.Transition) orderResponse {
	resp := orderResponse{Order: order, Permissions: workflow.PermissionsFor(order)}
	if tr != nil {
		resp.Transition = &transitionResponse{From: tr.From.Status(), To: tr.To.Status(), Message: tr.Message}
	}
	return resp
}

func respondResult(c *gin.Context, res *services.Result) {
	utils.RespondSuccess(c, http.StatusOK, newOrderResponse(res.Order, res.Transition))
}

// CreateOrder handles POST /api/v1/orders - opens an order at Reception
func (oc *OrderController) CreateOrder(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := oc.orders.CreateOrder(c.Request.Context(), services.CreateOrderInput{
		Code:        req.Code,
		CustomerID:  req.CustomerID,
		EquipmentID: req.EquipmentID,
		Note:        req.Note,
		IsRework:    req.IsRework,
	}, actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, newOrderResponse(order, nil))
}

// GetOrder handles GET /api/v1/orders/:id. With ?cached=true the last
// snapshot is served when there is one.
func (oc *OrderController) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if c.Query("cached") == "true" {
		order, found, err := oc.orders.GetCachedOrder(ctx, id)
		if err != nil {
			oc.logger.Warn("Snapshot read failed", zap.String("order_id", id), zap.Error(err))
		}
		if found {
			c.Header("X-Snapshot", "true")
			utils.RespondSuccess(c, http.StatusOK, newOrderResponse(order, nil))
			return
		}
	}

	order, err := oc.orders.GetOrder(ctx, id)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, newOrderResponse(order, nil))
}

// GetPermissions handles GET /api/v1/orders/:id/permissions
func (oc *OrderController) GetPermissions(c *gin.Context) {
	perms, err := oc.orders.Permissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, perms)
}

// Advance handles POST /api/v1/orders/:id/advance
func (oc *OrderController) Advance(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	res, err := oc.orders.Advance(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// Retreat handles POST /api/v1/orders/:id/retreat
func (oc *OrderController) Retreat(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req RetreatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	res, err := oc.orders.Retreat(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// Finalize handles POST /api/v1/orders/:id/finalize
func (oc *OrderController) Finalize(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	res, err := oc.orders.Finalize(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	respondResult(c, res)
}

// SaveNote handles PUT /api/v1/orders/:id/note. The note is written after
// the autosave delay, hence 202.
func (oc *OrderController) SaveNote(c *gin.Context) {
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	if err := oc.orders.SaveNote(c.Request.Context(), c.Param("id"), req.Note); err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusAccepted, gin.H{"queued": true})
}

// ListComments handles GET /api/v1/orders/:id/comments
func (oc *OrderController) ListComments(c *gin.Context) {
	comments, err := oc.orders.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, comments)
}
