package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateOrderInput is what reception captures for a new order.
type CreateOrderInput struct {
	Code        string
	CustomerID  string
	EquipmentID string
	Note        string
	IsRework    bool
}

// LineInput describes a new quotation line.
type LineInput struct {
	Code        string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	VATPct      decimal.Decimal
	InStock     bool
}

// LinePatch is a debounced edit; nil fields are left alone. The in-stock
// flag is not part of it, see SetLineStock.
type LinePatch struct {
	Code        *string
	Description *string
	Quantity    *int
	UnitPrice   *decimal.Decimal
	DiscountPct *decimal.Decimal
	VATPct      *decimal.Decimal
}

// QuotationUpdate edits the order-level quotation fields.
type QuotationUpdate struct {
	ShippingPrice *decimal.Decimal
	IsRework      *bool
}

// QuotationView is the priced quotation of an order.
type QuotationView struct {
	Lines []models.QuotationLine `json:"lines"`
	Quote workflow.Quote         `json:"quote"`
}

// Result is an order after an operation, plus the transition it caused.
type Result struct {
	Order      *models.Order
	Transition *workflow.Transition
}

// OrderService runs every order operation: it loads the order, applies the
// workflow, keeps totals and stock gating current and owns the debouncers.
type OrderService struct {
	repo     *OrderRepository
	comments *CommentLog
	machine  *workflow.Machine
	cache    SnapshotCache
	lines    *Debouncer
	notes    *Debouncer
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrderService(repo *OrderRepository, comments *CommentLog, machine *workflow.Machine, cache SnapshotCache, lineDelay, noteDelay time.Duration, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		repo:     repo,
		comments: comments,
		machine:  machine,
		cache:    cache,
		lines:    NewDebouncer(lineDelay, logger.Named("line_debouncer")),
		notes:    NewDebouncer(noteDelay, logger.Named("note_debouncer")),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func lineKeyPrefix(orderID string) string { return orderID + "/line/" }

func lineKey(orderID, lineID string) string { return lineKeyPrefix(orderID) + lineID }

// CreateOrder opens an order at Reception, copying the review fee from the
// equipment's model.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput, actor string) (*models.Order, error) {
	customer, err := s.repo.CustomerFor(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	equipment, err := s.repo.EquipmentFor(ctx, in.EquipmentID)
	if err != nil {
		return nil, err
	}
	if equipment.CustomerID != customer.ID {
		return nil, fmt.Errorf("%w: equipment does not belong to the customer", workflow.ErrValidation)
	}

	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = "OT-" + strings.ToUpper(uuid.NewString()[:8])
	}
	now := s.now()
	order := &models.Order{
		Code:           code,
		CustomerID:     customer.ID,
		EquipmentID:    equipment.ID,
		CurrentStatus:  string(workflow.StatusReception),
		StartReception: &now,
		ReviewFee:      equipment.Model.ReviewFee,
		Note:           in.Note,
		IsRework:       in.IsRework,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("Order created", zap.String("order_id", order.ID), zap.String("code", order.Code))
	return order, nil
}

// GetOrder is the authoritative read. The snapshot is refreshed when the
// stored copy is older.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, order)
	return order, nil
}

// GetCachedOrder serves the last snapshot, if any.
func (s *OrderService) GetCachedOrder(ctx context.Context, id string) (*models.Order, bool, error) {
	return s.cache.Get(ctx, id)
}

func (s *OrderService) remember(ctx context.Context, order *models.Order) {
	if _, err := ReconcileSnapshot(ctx, s.cache, order); err != nil {
		s.logger.Warn("Failed to refresh order snapshot", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// Permissions evaluates the gating predicates for the stored order.
func (s *OrderService) Permissions(ctx context.Context, id string) (workflow.Permissions, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return workflow.Permissions{}, err
	}
	return workflow.PermissionsFor(order), nil
}

// Advance moves the order forward. Leaving Quotation first writes any
// pending line edits and merges the recomputed total and pending note. The
// queued note is dropped only once the transition is stored.
func (s *OrderService) Advance(ctx context.Context, id, actor string) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	var mergedNote map[string]interface{}
	collect := func(ctx context.Context, order *models.Order) (workflow.Pending, error) {
		pending, note, err := s.collectQuotation(ctx, order)
		mergedNote = note
		return pending, err
	}
	tr, err := s.machine.Advance(ctx, order, actor, collect)
	if err != nil {
		return nil, err
	}
	if mergedNote != nil {
		s.notes.CancelIfUnchanged(id, mergedNote)
	}
	return s.done(ctx, order, tr), nil
}

// collectQuotation also returns the queued note fields it merged, which stay
// queued until the caller knows the write went through.
func (s *OrderService) collectQuotation(ctx context.Context, order *models.Order) (workflow.Pending, map[string]interface{}, error) {
	if err := s.lines.FlushPrefix(ctx, lineKeyPrefix(order.ID)); err != nil {
		return workflow.Pending{}, nil, err
	}
	lines, err := s.repo.ListLines(ctx, order.ID)
	if err != nil {
		return workflow.Pending{}, nil, err
	}
	total := workflow.Price(order, lines).Total
	pending := workflow.Pending{Total: &total}
	fields, ok := s.notes.Pending(order.ID)
	if !ok {
		return pending, nil, nil
	}
	if note, ok := fields["note"].(string); ok {
		pending.Note = &note
	}
	return pending, fields, nil
}

// Retreat moves the order back, logging the reason. Edits queued while the
// phase was open are written first so none lands after it closes.
func (s *OrderService) Retreat(ctx context.Context, id, actor, reason string) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if workflow.CanRetreat(order) && strings.TrimSpace(reason) != "" {
		lineErr := s.lines.FlushPrefix(ctx, lineKeyPrefix(id))
		noteErr := s.notes.Flush(ctx, id)
		if lineErr != nil || noteErr != nil {
			return nil, fmt.Errorf("%w: pending edits could not be saved: %v", workflow.ErrPersistence, errors.Join(lineErr, noteErr))
		}
		if order, err = s.repo.GetOrder(ctx, id); err != nil {
			return nil, err
		}
	}
	tr, err := s.machine.Retreat(ctx, order, actor, reason)
	if err != nil {
		return nil, err
	}
	return s.done(ctx, order, tr), nil
}

func (s *OrderService) Finalize(ctx context.Context, id, actor string) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	tr, err := s.machine.Finalize(ctx, order, actor)
	if err != nil {
		return nil, err
	}
	return s.done(ctx, order, tr), nil
}

// SaveNote queues the note for autosave.
func (s *OrderService) SaveNote(ctx context.Context, id, note string) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !workflow.CanEditGeneralFields(order) {
		return fmt.Errorf("%w: the note can only be edited while the quotation is open", workflow.ErrPhaseLocked)
	}
	s.notes.Schedule(id, map[string]interface{}{"note": note}, func(ctx context.Context, fields map[string]interface{}) error {
		return s.repo.UpdateOrderFields(ctx, id, fields)
	})
	return nil
}

// UpdateQuotation writes shipping price and rework flag immediately.
func (s *OrderService) UpdateQuotation(ctx context.Context, id string, in QuotationUpdate) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !workflow.CanEditQuotationFields(order) {
		return nil, fmt.Errorf("%w: the quotation can no longer be edited", workflow.ErrPhaseLocked)
	}

	fields := map[string]interface{}{}
	if in.ShippingPrice != nil {
		if in.ShippingPrice.IsNegative() {
			return nil, fmt.Errorf("%w: shipping price cannot be negative", workflow.ErrValidation)
		}
		fields["shipping_price"] = in.ShippingPrice.Round(2)
		order.ShippingPrice = in.ShippingPrice.Round(2)
	}
	if in.IsRework != nil {
		fields["is_rework"] = *in.IsRework
		order.IsRework = *in.IsRework
	}
	if len(fields) == 0 {
		return &Result{Order: order}, nil
	}

	fields["total"] = workflow.Price(order, order.Lines).Total
	fields["updated_at"] = s.now()
	if err := s.repo.UpdateOrderFields(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	return s.reload(ctx, id, nil)
}

func (s *OrderService) SendQuotation(ctx context.Context, id, actor string) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lines.FlushPrefix(ctx, lineKeyPrefix(id)); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	tr, err := s.machine.SendQuotation(ctx, order, actor)
	if err != nil {
		return nil, err
	}
	return s.done(ctx, order, tr), nil
}

// RecordClientDecision stores the client's answer, then lets stock gating
// put the order back on hold if parts are still missing.
func (s *OrderService) RecordClientDecision(ctx context.Context, id, actor string, accepted bool) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	tr, err := s.machine.RecordClientDecision(ctx, order, actor, accepted)
	if err != nil {
		return nil, err
	}
	if gated, err := s.machine.EvaluateStock(ctx, order, order.Lines); err != nil {
		return nil, err
	} else if gated != nil {
		tr = gated
	}
	return s.done(ctx, order, tr), nil
}

// Quotation returns the lines and their pricing.
func (s *OrderService) Quotation(ctx context.Context, id string) (*QuotationView, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &QuotationView{Lines: order.Lines, Quote: workflow.Price(order, order.Lines)}, nil
}

func validateLine(qty int, unit, discount, vat decimal.Decimal) error {
	switch {
	case qty <= 0:
		return fmt.Errorf("%w: quantity must be greater than zero", workflow.ErrValidation)
	case unit.IsNegative():
		return fmt.Errorf("%w: unit price cannot be negative", workflow.ErrValidation)
	case discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: discount must be between 0 and 100", workflow.ErrValidation)
	case vat.IsNegative() || vat.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: VAT must be between 0 and 100", workflow.ErrValidation)
	}
	return nil
}

// AddLine persists a new line right away and re-evaluates stock gating.
func (s *OrderService) AddLine(ctx context.Context, id string, in LineInput) (*models.QuotationLine, *Result, error) {
	order, err := s.editableOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, nil, fmt.Errorf("%w: code is required", workflow.ErrValidation)
	}
	if err := validateLine(in.Quantity, in.UnitPrice, in.DiscountPct, in.VATPct); err != nil {
		return nil, nil, err
	}

	line := &models.QuotationLine{
		OrderID:     id,
		Code:        strings.TrimSpace(in.Code),
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		DiscountPct: in.DiscountPct,
		VATPct:      in.VATPct,
		InStock:     in.InStock,
	}
	if err := s.repo.CreateLine(ctx, line); err != nil {
		return nil, nil, err
	}
	res, err := s.afterLineChange(ctx, order)
	return line, res, err
}

// UpdateLine queues a field edit; it is written after the line debounce.
func (s *OrderService) UpdateLine(ctx context.Context, id, lineID string, in LinePatch) error {
	if _, err := s.editableOrder(ctx, id); err != nil {
		return err
	}
	line, err := s.repo.GetLine(ctx, id, lineID)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if in.Code != nil {
		if strings.TrimSpace(*in.Code) == "" {
			return fmt.Errorf("%w: code is required", workflow.ErrValidation)
		}
		fields["code"] = strings.TrimSpace(*in.Code)
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Quantity != nil {
		fields["quantity"] = *in.Quantity
		line.Quantity = *in.Quantity
	}
	if in.UnitPrice != nil {
		fields["unit_price"] = *in.UnitPrice
		line.UnitPrice = *in.UnitPrice
	}
	if in.DiscountPct != nil {
		fields["discount_pct"] = *in.DiscountPct
		line.DiscountPct = *in.DiscountPct
	}
	if in.VATPct != nil {
		fields["vat_pct"] = *in.VATPct
		line.VATPct = *in.VATPct
	}
	if err := validateLine(line.Quantity, line.UnitPrice, line.DiscountPct, line.VATPct); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	s.lines.Schedule(lineKey(id, lineID), fields, func(ctx context.Context, fields map[string]interface{}) error {
		order, err := s.editableOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateLineFields(ctx, id, lineID, fields); err != nil {
			return err
		}
		_, err = s.afterLineChange(ctx, order)
		return err
	})
	return nil
}

// SetLineStock writes the in-stock flag immediately and applies stock gating.
// Parts arriving does not change the quote, so it stays allowed after the
// client accepted.
func (s *OrderService) SetLineStock(ctx context.Context, id, lineID string, inStock bool) (*Result, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !workflow.CanToggleStock(order) {
		state, _ := workflow.StateOf(order)
		return nil, fmt.Errorf("%w: stock cannot be updated while the order is %s", workflow.ErrPhaseLocked, state.Label())
	}
	if err := s.repo.UpdateLineFields(ctx, id, lineID, map[string]interface{}{"in_stock": inStock}); err != nil {
		return nil, err
	}
	return s.afterLineChange(ctx, order)
}

// DeleteLine removes a line immediately, dropping its queued edits.
func (s *OrderService) DeleteLine(ctx context.Context, id, lineID string) (*Result, error) {
	order, err := s.editableOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lines.Cancel(lineKey(id, lineID))
	if err := s.repo.DeleteLine(ctx, id, lineID); err != nil {
		return nil, err
	}
	return s.afterLineChange(ctx, order)
}

// PendingLineEdit exposes a queued line edit, mainly for the UI's dirty marker.
func (s *OrderService) PendingLineEdit(id, lineID string) (map[string]interface{}, bool) {
	return s.lines.Pending(lineKey(id, lineID))
}

func (s *OrderService) editableOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !workflow.CanEditLineItems(order) {
		state, _ := workflow.StateOf(order)
		return nil, fmt.Errorf("%w: quotation lines cannot be edited while the order is %s", workflow.ErrPhaseLocked, state.Label())
	}
	return order, nil
}

// afterLineChange recomputes the total and re-evaluates stock gating from
// the stored lines.
func (s *OrderService) afterLineChange(ctx context.Context, order *models.Order) (*Result, error) {
	lines, err := s.repo.ListLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	total := workflow.Price(order, lines).Total
	fields := map[string]interface{}{"updated_at": s.now()}
	if !total.Equal(order.Total) {
		fields["total"] = total
	}
	if err := s.repo.UpdateOrderFields(ctx, order.ID, fields); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrPersistence, err)
	}
	order.Total = total
	order.UpdatedAt = fields["updated_at"].(time.Time)

	tr, err := s.machine.EvaluateStock(ctx, order, lines)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, order)
	return &Result{Order: order, Transition: tr}, nil
}

func (s *OrderService) reload(ctx context.Context, id string, tr *workflow.Transition) (*Result, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Order: order, Transition: tr}, nil
}

func (s *OrderService) done(ctx context.Context, order *models.Order, tr *workflow.Transition) *Result {
	s.remember(ctx, order)
	return &Result{Order: order, Transition: tr}
}

// Comments lists the order's comment log.
func (s *OrderService) Comments(ctx context.Context, id string) ([]models.OrderComment, error) {
	if _, err := s.repo.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.comments.List(ctx, id)
}

// Shutdown writes every queued edit.
func (s *OrderService) Shutdown(ctx context.Context) error {
	lineErr := s.lines.FlushAll(ctx)
	noteErr := s.notes.FlushAll(ctx)
	if lineErr != nil {
		return lineErr
	}
	return noteErr
}

// WithClock replaces the time source, for tests.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}
