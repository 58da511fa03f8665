package workflow

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/repairshop-api/models"
)

// AllInStock is true when every line is in stock. No lines means nothing to wait for.
func AllInStock(lines []models.QuotationLine) bool {
	for _, l := range lines {
		if !l.InStock {
			return false
		}
	}
	return true
}

// EvaluateStock toggles between Quotation and Awaiting Parts after any line
// change. It returns a nil transition when the status already matches.
func (m *Machine) EvaluateStock(ctx context.Context, order *models.Order, lines []models.QuotationLine) (*Transition, error) {
	from, err := StateOf(order)
	if err != nil {
		return nil, err
	}
	if from.Phase != PhaseQuotation || from.Hold == HoldAwaitingAcceptance {
		return nil, nil
	}

	inStock := AllInStock(lines)
	now := m.now()
	p := newPatch(order)
	var to State
	switch {
	case from.Hold == HoldNone && !inStock:
		to = State{Phase: PhaseQuotation, Hold: HoldAwaitingParts}
		p.stamp(FieldPartsRequestedAt, now)
	case from.Hold == HoldAwaitingParts && inStock:
		to = State{Phase: PhaseQuotation}
		p.stamp(FieldPartsReceivedAt, now)
	default:
		return nil, nil
	}
	p.setStatus(to)
	p.touch(now)

	msg := "Parts requested, order is awaiting parts"
	if to.Hold == HoldNone {
		msg = "All parts in stock, order is back in Quotation"
	}
	return m.commit(ctx, order, p, from, to, msg)
}

// SendQuotation marks the quote as sent and waits for the client's answer.
func (m *Machine) SendQuotation(ctx context.Context, order *models.Order, actor string) (*Transition, error) {
	from, err := StateOf(order)
	if err != nil {
		return nil, err
	}
	if !CanSendQuotationToClient(order) {
		return nil, fmt.Errorf("%w: the quotation cannot be sent while the order is %s", ErrInvalidTransition, from.Label())
	}

	now := m.now()
	to := State{Phase: PhaseQuotation, Hold: HoldAwaitingAcceptance}
	p := newPatch(order)
	p.stamp(FieldQuoteSentAt, now)
	p.setStatus(to)
	p.touch(now)
	return m.commit(ctx, order, p, from, to, "Quotation sent to the client")
}

// RecordClientDecision stores the client's answer and reopens Quotation.
func (m *Machine) RecordClientDecision(ctx context.Context, order *models.Order, actor string, accepted bool) (*Transition, error) {
	from, err := StateOf(order)
	if err != nil {
		return nil, err
	}
	if !CanRecordClientDecision(order) {
		return nil, fmt.Errorf("%w: no quotation is awaiting the client's answer, order is %s", ErrInvalidTransition, from.Label())
	}

	now := m.now()
	to := State{Phase: PhaseQuotation}
	p := newPatch(order)
	p.setApproval(accepted)
	p.stamp(FieldClientDecisionAt, now)
	p.setStatus(to)
	p.touch(now)

	msg := "Client rejected the quotation"
	if accepted {
		msg = "Client accepted the quotation"
	}
	return m.commit(ctx, order, p, from, to, msg)
}
