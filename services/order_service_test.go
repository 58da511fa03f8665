package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

// standardLine is 2 x 100 at 10% discount and 19% VAT: 214.20
func standardLine(inStock bool) LineInput {
	return LineInput{
		Code:        "BRUSH-18V",
		Description: "Carbon brush set",
		Quantity:    2,
		UnitPrice:   decimal.NewFromInt(100),
		DiscountPct: decimal.NewFromInt(10),
		VATPct:      decimal.NewFromInt(19),
		InStock:     inStock,
	}
}

func TestCreateOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	order := e.newOrder(t)
	assert.Equal(t, string(workflow.StatusReception), order.CurrentStatus)
	assert.NotNil(t, order.StartReception)
	assert.Contains(t, order.Code, "OT-")
	assertDecimal(t, "50", order.ReviewFee)
	assert.Equal(t, e.tech(), order.CreatedBy)

	stored := e.reload(t, order.ID)
	assertDecimal(t, "50", stored.ReviewFee)
	assert.Nil(t, stored.EndReception)

	t.Run("Unknown equipment", func(t *testing.T) {
		_, err := e.svc.CreateOrder(ctx, CreateOrderInput{CustomerID: e.fx.Customer.ID, EquipmentID: "missing"}, e.tech())
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("Equipment of another customer", func(t *testing.T) {
		other := models.Customer{Name: "Someone Else"}
		require.NoError(t, e.db.Create(&other).Error)
		_, err := e.svc.CreateOrder(ctx, CreateOrderInput{CustomerID: other.ID, EquipmentID: e.fx.Equipment.ID}, e.tech())
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("Explicit code is kept", func(t *testing.T) {
		o, err := e.svc.CreateOrder(ctx, CreateOrderInput{Code: " OT-7781 ", CustomerID: e.fx.Customer.ID, EquipmentID: e.fx.Equipment.ID}, e.tech())
		require.NoError(t, err)
		assert.Equal(t, "OT-7781", o.Code)
	})
}

func TestAdvanceThroughFlow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.newOrder(t)

	res, err := e.svc.Advance(ctx, order.ID, e.tech())
	require.NoError(t, err)
	assert.Equal(t, "Order moved to Diagnosis", res.Transition.Message)

	stored := e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusDiagnosis), stored.CurrentStatus)
	require.NotNil(t, stored.EndReception)
	require.NotNil(t, stored.TechReception)
	assert.Equal(t, e.tech(), *stored.TechReception)
	assert.NotNil(t, stored.StartDiagnosis)

	e.advance(t, order.ID, 1)
	stored = e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusQuotation), stored.CurrentStatus)
	assert.NotNil(t, stored.EndDiagnosis)
	assert.NotNil(t, stored.StartQuotation)

	e.advance(t, order.ID, 2)
	stored = e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusDelivery), stored.CurrentStatus)
	assert.NotNil(t, stored.ApprovalDate)
	assert.NotNil(t, stored.StartRepair)
	assert.NotNil(t, stored.EndRepair)
	require.NotNil(t, stored.TechRepair)

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	assert.ErrorIs(t, err, workflow.ErrAlreadyLastPhase)

	res, err = e.svc.Finalize(ctx, order.ID, e.tech())
	require.NoError(t, err)
	assert.Equal(t, "Order finalized", res.Transition.Message)
	stored = e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusFinished), stored.CurrentStatus)
	assert.NotNil(t, stored.DeliveryDate)
	require.NotNil(t, stored.TechDelivery)

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = e.svc.Retreat(ctx, order.ID, e.tech(), "reopen")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	// One notification per committed change
	messages := e.writer.Messages()
	require.Len(t, messages, 5)
	var first PhaseNotification
	require.NoError(t, json.Unmarshal(messages[0].Value, &first))
	assert.Equal(t, "diagnosis", first.Status)
	assert.Equal(t, "reception", first.FromStatus)
	assert.Equal(t, "Ana Rojas", first.CustomerName)
	assert.Contains(t, first.WhatsAppURL, "https://wa.me/56912345678?text=")
	assert.Equal(t, order.ID, string(messages[0].Key))
}

func TestFinalizeRequiresDelivery(t *testing.T) {
	e := newTestEnv(t)
	order := e.newOrder(t)

	_, err := e.svc.Finalize(context.Background(), order.ID, e.tech())
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Equal(t, string(workflow.StatusReception), e.reload(t, order.ID).CurrentStatus)
}

func TestOperationsOnMissingOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = e.svc.Advance(ctx, "missing", e.tech())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = e.svc.Permissions(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = e.svc.Comments(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestQuotationPricing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)

	line, res, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)
	assert.NotEmpty(t, line.ID)
	assert.Nil(t, res.Transition)
	assertDecimal(t, "214.2", res.Order.Total)

	shipping := decimal.NewFromInt(20)
	res, err = e.svc.UpdateQuotation(ctx, order.ID, QuotationUpdate{ShippingPrice: &shipping})
	require.NoError(t, err)
	assertDecimal(t, "234.2", res.Order.Total)
	assertDecimal(t, "234.2", e.reload(t, order.ID).Total)

	view, err := e.svc.Quotation(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assertDecimal(t, "214.2", view.Quote.Subtotal)
	assertDecimal(t, "20", view.Quote.Shipping)
	assertDecimal(t, "234.2", view.Quote.Total)
	assertDecimal(t, "50", view.Quote.ReviewFee)
	assertDecimal(t, "234.2", view.Quote.AmountDue)
	assert.True(t, view.Quote.AllInStock)

	t.Run("Rework zeroes everything", func(t *testing.T) {
		rework := true
		res, err := e.svc.UpdateQuotation(ctx, order.ID, QuotationUpdate{IsRework: &rework})
		require.NoError(t, err)
		assertDecimal(t, "0", res.Order.Total)
		view, err := e.svc.Quotation(ctx, order.ID)
		require.NoError(t, err)
		assertDecimal(t, "0", view.Quote.AmountDue)
	})

	t.Run("Negative shipping is rejected", func(t *testing.T) {
		negative := decimal.NewFromInt(-1)
		_, err := e.svc.UpdateQuotation(ctx, order.ID, QuotationUpdate{ShippingPrice: &negative})
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})
}

func TestAddLineValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)

	tests := []struct {
		name   string
		mutate func(*LineInput)
	}{
		{"Missing code", func(l *LineInput) { l.Code = "  " }},
		{"Zero quantity", func(l *LineInput) { l.Quantity = 0 }},
		{"Negative price", func(l *LineInput) { l.UnitPrice = decimal.NewFromInt(-5) }},
		{"Discount over 100", func(l *LineInput) { l.DiscountPct = decimal.NewFromInt(101) }},
		{"Negative VAT", func(l *LineInput) { l.VATPct = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := standardLine(true)
			tt.mutate(&in)
			_, _, err := e.svc.AddLine(ctx, order.ID, in)
			assert.ErrorIs(t, err, workflow.ErrValidation)
		})
	}

	lines, err := e.repo.ListLines(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLinesLockedOutsideQuotation(t *testing.T) {
	e := newTestEnv(t)
	order := e.newOrder(t)

	_, _, err := e.svc.AddLine(context.Background(), order.ID, standardLine(true))
	assert.ErrorIs(t, err, workflow.ErrPhaseLocked)
}

func TestStockGating(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)

	line, res, err := e.svc.AddLine(ctx, order.ID, standardLine(false))
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.Equal(t, workflow.HoldAwaitingParts, res.Transition.To.Hold)

	stored := e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusAwaitingParts), stored.CurrentStatus)
	assert.NotNil(t, stored.PartsRequestedAt)
	assert.Nil(t, stored.PartsReceivedAt)

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	assert.ErrorIs(t, err, workflow.ErrPhaseLocked)

	perms, err := e.svc.Permissions(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, perms.CanAdvance)
	assert.True(t, perms.CanEditLineItems)
	assert.Equal(t, 2, perms.Ordinal)

	// Adding another missing part keeps the hold without a new transition
	_, res, err = e.svc.AddLine(ctx, order.ID, standardLine(false))
	require.NoError(t, err)
	assert.Nil(t, res.Transition)

	res, err = e.svc.SetLineStock(ctx, order.ID, line.ID, true)
	require.NoError(t, err)
	assert.Nil(t, res.Transition)
	assert.Equal(t, string(workflow.StatusAwaitingParts), e.reload(t, order.ID).CurrentStatus)

	lines, err := e.repo.ListLines(ctx, order.ID)
	require.NoError(t, err)
	res, err = e.svc.DeleteLine(ctx, order.ID, lines[1].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.Equal(t, "All parts in stock, order is back in Quotation", res.Transition.Message)

	stored = e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusQuotation), stored.CurrentStatus)
	assert.NotNil(t, stored.PartsReceivedAt)
	assertDecimal(t, "214.2", stored.Total)

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	assert.NoError(t, err)
}

func TestDebouncedLineEditFlushedOnAdvance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)

	line, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)

	qty := 3
	require.NoError(t, e.svc.UpdateLine(ctx, order.ID, line.ID, LinePatch{Quantity: &qty}))

	pending, ok := e.svc.PendingLineEdit(order.ID, line.ID)
	require.True(t, ok)
	assert.Equal(t, 3, pending["quantity"])

	stored, err := e.repo.GetLine(ctx, order.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Quantity, "edit must not be written before the debounce")

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	require.NoError(t, err)

	_, ok = e.svc.PendingLineEdit(order.ID, line.ID)
	assert.False(t, ok)

	stored, err = e.repo.GetLine(ctx, order.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)

	o := e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusRepair), o.CurrentStatus)
	assertDecimal(t, "321.3", o.Total)
	assert.NotNil(t, o.ApprovalDate)
	require.NotNil(t, o.TechQuotation)
	assert.Equal(t, e.tech(), *o.TechQuotation)
}

func TestUpdateLineValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	line, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)

	zero := 0
	err = e.svc.UpdateLine(ctx, order.ID, line.ID, LinePatch{Quantity: &zero})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	err = e.svc.UpdateLine(ctx, order.ID, "missing", LinePatch{Quantity: &zero})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, ok := e.svc.PendingLineEdit(order.ID, line.ID)
	assert.False(t, ok)
}

func TestDeleteLineDropsPendingEdit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	line, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)

	desc := "Edited"
	require.NoError(t, e.svc.UpdateLine(ctx, order.ID, line.ID, LinePatch{Description: &desc}))

	res, err := e.svc.DeleteLine(ctx, order.ID, line.ID)
	require.NoError(t, err)
	assertDecimal(t, "0", res.Order.Total)

	_, ok := e.svc.PendingLineEdit(order.ID, line.ID)
	assert.False(t, ok)
	_, err = e.repo.GetLine(ctx, order.ID, line.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestSaveNote(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	t.Run("Locked before Quotation", func(t *testing.T) {
		order := e.newOrder(t)
		err := e.svc.SaveNote(ctx, order.ID, "early note")
		assert.ErrorIs(t, err, workflow.ErrPhaseLocked)
	})

	t.Run("Pending note is written when leaving Quotation", func(t *testing.T) {
		order := e.orderInQuotation(t)
		require.NoError(t, e.svc.SaveNote(ctx, order.ID, "Customer needs it by Friday"))
		assert.Empty(t, e.reload(t, order.ID).Note)

		_, err := e.svc.Advance(ctx, order.ID, e.tech())
		require.NoError(t, err)
		assert.Equal(t, "Customer needs it by Friday", e.reload(t, order.ID).Note)
	})

	t.Run("Shutdown writes the pending note", func(t *testing.T) {
		order := e.orderInQuotation(t)
		require.NoError(t, e.svc.SaveNote(ctx, order.ID, "flushed on shutdown"))
		require.NoError(t, e.svc.Shutdown(ctx))
		assert.Equal(t, "flushed on shutdown", e.reload(t, order.ID).Note)
	})
}

func TestFailedAdvanceKeepsQueuedNote(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	require.NoError(t, e.svc.SaveNote(ctx, order.ID, "keep me"))

	e.failOrderUpdates(t, "approval_date")
	_, err := e.svc.Advance(ctx, order.ID, e.tech())
	assert.ErrorIs(t, err, workflow.ErrPersistence)
	assert.Equal(t, string(workflow.StatusQuotation), e.reload(t, order.ID).CurrentStatus)

	pending, ok := e.svc.notes.Pending(order.ID)
	require.True(t, ok, "note must stay queued after a failed Advance")
	assert.Equal(t, "keep me", pending["note"])

	require.NoError(t, e.svc.Shutdown(ctx))
	assert.Equal(t, "keep me", e.reload(t, order.ID).Note)
}

func TestAdvanceKeepsNoteQueuedAfterCollect(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	require.NoError(t, e.svc.SaveNote(ctx, order.ID, "first"))

	seen, ok := e.svc.notes.Pending(order.ID)
	require.True(t, ok)
	require.NoError(t, e.svc.SaveNote(ctx, order.ID, "second"))

	assert.False(t, e.svc.notes.CancelIfUnchanged(order.ID, seen))
	pending, ok := e.svc.notes.Pending(order.ID)
	require.True(t, ok)
	assert.Equal(t, "second", pending["note"])

	assert.True(t, e.svc.notes.CancelIfUnchanged(order.ID, pending))
	assert.Zero(t, e.svc.notes.Len())
}

func TestRetreatWritesQueuedLineEditsFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	line, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)

	qty := 7
	require.NoError(t, e.svc.UpdateLine(ctx, order.ID, line.ID, LinePatch{Quantity: &qty}))
	require.NoError(t, e.svc.SaveNote(ctx, order.ID, "written before going back"))

	_, err = e.svc.Retreat(ctx, order.ID, e.tech(), "wrong diagnosis")
	require.NoError(t, err)

	_, ok := e.svc.PendingLineEdit(order.ID, line.ID)
	assert.False(t, ok, "no line edit may stay queued once Quotation closes")
	assert.Zero(t, e.svc.lines.Len())
	assert.Zero(t, e.svc.notes.Len())

	stored, err := e.repo.GetLine(ctx, order.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Quantity)

	o := e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusDiagnosis), o.CurrentStatus)
	assert.False(t, workflow.CanEditLineItems(o))
	assert.Equal(t, "written before going back", o.Note)
	assertDecimal(t, "749.7", o.Total)
}

func TestQueuedLineEditDroppedOnceLocked(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	line, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
	require.NoError(t, err)

	qty := 9
	require.NoError(t, e.svc.UpdateLine(ctx, order.ID, line.ID, LinePatch{Quantity: &qty}))

	// Close the quotation behind the debouncer's back.
	require.NoError(t, e.repo.UpdateOrderFields(ctx, order.ID, map[string]interface{}{
		"current_status": string(workflow.StatusDiagnosis),
	}))

	err = e.svc.lines.Flush(ctx, lineKey(order.ID, line.ID))
	assert.ErrorIs(t, err, workflow.ErrPhaseLocked)

	stored, err := e.repo.GetLine(ctx, order.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Quantity)
}

func TestFailedRetreatLeavesNoComment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	e.advance(t, order.ID, 1)

	e.failOrderUpdates(t, "current_status")
	_, err := e.svc.Retreat(ctx, order.ID, e.tech(), "Client asked for a new quote")
	assert.ErrorIs(t, err, workflow.ErrPersistence)
	assert.Equal(t, string(workflow.StatusRepair), e.reload(t, order.ID).CurrentStatus)

	comments, err := e.svc.Comments(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestRetreat(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.orderInQuotation(t)
	e.advance(t, order.ID, 1)

	before := e.reload(t, order.ID)
	require.Equal(t, string(workflow.StatusRepair), before.CurrentStatus)

	_, err := e.svc.Retreat(ctx, order.ID, e.tech(), "   ")
	assert.ErrorIs(t, err, workflow.ErrMissingReason)
	assert.Equal(t, string(workflow.StatusRepair), e.reload(t, order.ID).CurrentStatus)

	res, err := e.svc.Retreat(ctx, order.ID, e.tech(), "Client asked for a new quote")
	require.NoError(t, err)
	assert.Equal(t, "Order returned to Quotation", res.Transition.Message)

	stored := e.reload(t, order.ID)
	assert.Equal(t, string(workflow.StatusQuotation), stored.CurrentStatus)
	assert.Nil(t, stored.StartRepair)
	assert.Nil(t, stored.ApprovalDate)
	assert.Nil(t, stored.TechQuotation)
	assert.NotNil(t, stored.StartQuotation)

	comments, err := e.svc.Comments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, models.CommentKindRetreat, comments[0].Kind)
	assert.Equal(t, "Repair", comments[0].FromStatus)
	assert.Equal(t, "Quotation", comments[0].ToStatus)
	assert.Equal(t, "Client asked for a new quote", comments[0].Text)
	assert.Equal(t, e.tech(), comments[0].AuthorID)

	t.Run("Reception cannot go back", func(t *testing.T) {
		fresh := e.newOrder(t)
		_, err := e.svc.Retreat(ctx, fresh.ID, e.tech(), "why not")
		assert.ErrorIs(t, err, workflow.ErrAlreadyFirstPhase)
	})
}

func TestSendQuotationAndClientDecision(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	t.Run("Rejected quote charges the review fee", func(t *testing.T) {
		order := e.orderInQuotation(t)
		_, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
		require.NoError(t, err)

		res, err := e.svc.SendQuotation(ctx, order.ID, e.tech())
		require.NoError(t, err)
		assert.Equal(t, workflow.HoldAwaitingAcceptance, res.Transition.To.Hold)

		stored := e.reload(t, order.ID)
		assert.Equal(t, string(workflow.StatusAwaitingAcceptance), stored.CurrentStatus)
		assert.NotNil(t, stored.QuoteSentAt)

		_, _, err = e.svc.AddLine(ctx, order.ID, standardLine(true))
		assert.ErrorIs(t, err, workflow.ErrPhaseLocked)
		_, err = e.svc.Advance(ctx, order.ID, e.tech())
		assert.ErrorIs(t, err, workflow.ErrPhaseLocked)
		_, err = e.svc.SendQuotation(ctx, order.ID, e.tech())
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

		res, err = e.svc.RecordClientDecision(ctx, order.ID, e.tech(), false)
		require.NoError(t, err)
		assert.Equal(t, "Client rejected the quotation", res.Transition.Message)

		stored = e.reload(t, order.ID)
		assert.Equal(t, string(workflow.StatusQuotation), stored.CurrentStatus)
		require.NotNil(t, stored.ClientApproved)
		assert.False(t, *stored.ClientApproved)
		assert.NotNil(t, stored.ClientDecisionAt)

		view, err := e.svc.Quotation(ctx, order.ID)
		require.NoError(t, err)
		assertDecimal(t, "50", view.Quote.AmountDue)
	})

	t.Run("Accepted quote locks the lines", func(t *testing.T) {
		order := e.orderInQuotation(t)
		_, _, err := e.svc.AddLine(ctx, order.ID, standardLine(true))
		require.NoError(t, err)
		_, err = e.svc.SendQuotation(ctx, order.ID, e.tech())
		require.NoError(t, err)
		_, err = e.svc.RecordClientDecision(ctx, order.ID, e.tech(), true)
		require.NoError(t, err)

		perms, err := e.svc.Permissions(ctx, order.ID)
		require.NoError(t, err)
		assert.False(t, perms.CanEditLineItems)
		assert.True(t, perms.CanAdvance)
		assert.True(t, perms.CanEditGeneralFields)
	})

	t.Run("Decision re-applies stock gating", func(t *testing.T) {
		order := e.orderInQuotation(t)
		_, _, err := e.svc.AddLine(ctx, order.ID, standardLine(false))
		require.NoError(t, err)
		require.Equal(t, string(workflow.StatusAwaitingParts), e.reload(t, order.ID).CurrentStatus)

		_, err = e.svc.SendQuotation(ctx, order.ID, e.tech())
		require.NoError(t, err)

		res, err := e.svc.RecordClientDecision(ctx, order.ID, e.tech(), true)
		require.NoError(t, err)
		assert.Equal(t, workflow.HoldAwaitingParts, res.Transition.To.Hold)
		assert.Equal(t, string(workflow.StatusAwaitingParts), e.reload(t, order.ID).CurrentStatus)

		// Lines are locked by the acceptance but the parts can still arrive.
		lines, err := e.repo.ListLines(ctx, order.ID)
		require.NoError(t, err)
		five := 5
		err = e.svc.UpdateLine(ctx, order.ID, lines[0].ID, LinePatch{Quantity: &five})
		assert.ErrorIs(t, err, workflow.ErrPhaseLocked)
		res, err = e.svc.SetLineStock(ctx, order.ID, lines[0].ID, true)
		require.NoError(t, err)
		require.NotNil(t, res.Transition)
		assert.Equal(t, string(workflow.StatusQuotation), e.reload(t, order.ID).CurrentStatus)
		_, err = e.svc.Advance(ctx, order.ID, e.tech())
		assert.NoError(t, err)
	})

	t.Run("No decision without a sent quote", func(t *testing.T) {
		order := e.orderInQuotation(t)
		_, err := e.svc.RecordClientDecision(ctx, order.ID, e.tech(), true)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})
}

func TestSnapshotFollowsReads(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := e.newOrder(t)

	_, ok, err := e.svc.GetCachedOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := e.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	cached, ok, err := e.svc.GetCachedOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fresh.UpdatedAt.Equal(cached.UpdatedAt))

	_, err = e.svc.Advance(ctx, order.ID, e.tech())
	require.NoError(t, err)
	cached, _, err = e.svc.GetCachedOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StatusDiagnosis), cached.CurrentStatus)
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	e := newTestEnv(t)
	e.writer.err = assert.AnError
	order := e.newOrder(t)

	_, err := e.svc.Advance(context.Background(), order.ID, e.tech())
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StatusDiagnosis), e.reload(t, order.ID).CurrentStatus)
}
