package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store persists a partial order update. A nil value writes NULL.
type Store interface {
	UpdateOrderFields(ctx context.Context, id string, fields map[string]interface{}) error
}

// RetreatComment is what gets logged every time an order goes back a phase.
type RetreatComment struct {
	OrderID string
	From    string
	To      string
	Reason  string
	Author  string
}

// CommentLogger records retreat reasons. DiscardRetreat withdraws a logged
// reason whose retreat could not be written.
type CommentLogger interface {
	LogRetreat(ctx context.Context, c RetreatComment) (id string, err error)
	DiscardRetreat(ctx context.Context, id string) error
}

// Notifier is told about every committed status change. Failures are logged
// and never undo the transition.
type Notifier interface {
	PhaseChanged(ctx context.Context, order *models.Order, from, to State) error
}

// Pending is the quotation data collected right before leaving Quotation.
// Nil fields are left as they are.
type Pending struct {
	Total         *decimal.Decimal
	ShippingPrice *decimal.Decimal
	Note          *string
}

// CollectFunc flushes unsaved quotation edits for the order and reports the
// values to merge into the Quotation -> Repair update.
type CollectFunc func(ctx context.Context, order *models.Order) (Pending, error)

// Transition is the outcome of a committed operation.
type Transition struct {
	From    State                  `json:"-"`
	To      State                  `json:"-"`
	Message string                 `json:"message"`
	Columns map[string]interface{} `json:"-"`
}

// Machine applies workflow operations to orders.
type Machine struct {
	store    Store
	comments CommentLogger
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewMachine creates a machine. notifier and logger may be nil.
func NewMachine(store Store, comments CommentLogger, notifier Notifier, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:    store,
		comments: comments,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Advance moves the order to the next phase, stamping the phase it leaves.
// collect is only invoked when leaving Quotation and may be nil.
func (m *Machine) Advance(ctx context.Context, order *models.Order, actor string, collect CollectFunc) (*Transition, error) {
	from, err := m.flowState(order)
	if err != nil {
		return nil, err
	}
	if from.Held() {
		return nil, fmt.Errorf("%w: cannot advance while the order is %s", ErrPhaseLocked, from.Label())
	}
	if from.Ordinal() >= LastOrdinal {
		return nil, fmt.Errorf("%w: %s is the last phase, finalize the order instead", ErrAlreadyLastPhase, from.Label())
	}

	now := m.now()
	p := newPatch(order)
	switch from.Phase {
	case PhaseReception:
		p.stamp(FieldEndReception, now)
		p.assign(FieldTechReception, actor)
		p.stamp(FieldStartDiagnosis, now)
	case PhaseDiagnosis:
		p.stamp(FieldEndDiagnosis, now)
		p.assign(FieldTechDiagnosis, actor)
		if order.StartQuotation == nil {
			p.stamp(FieldStartQuotation, now)
		}
	case PhaseQuotation:
		if collect != nil {
			pending, err := collect(ctx, order.Clone())
			if err != nil {
				m.logger.Error("Failed to collect quotation data",
					zap.String("order_id", order.ID), zap.Error(err))
				return nil, fmt.Errorf("%w: could not save the quotation: %v", ErrPersistence, err)
			}
			p.merge(pending)
		}
		p.stamp(FieldApprovalDate, now)
		p.assign(FieldTechQuotation, actor)
		p.stamp(FieldStartRepair, now)
	case PhaseRepair:
		p.stamp(FieldEndRepair, now)
		p.assign(FieldTechRepair, actor)
	}

	to := State{Phase: from.Phase + 1}
	p.setStatus(to)
	p.touch(now)
	return m.commit(ctx, order, p, from, to, fmt.Sprintf("Order moved to %s", to.Label()))
}

// Retreat moves the order back one phase, reopening it. reason is required
// and logged before anything is written; it is withdrawn again if the write
// fails.
func (m *Machine) Retreat(ctx context.Context, order *models.Order, actor, reason string) (*Transition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	from, err := m.flowState(order)
	if err != nil {
		return nil, err
	}
	if from.Ordinal() <= 0 {
		return nil, fmt.Errorf("%w: %s cannot go back", ErrAlreadyFirstPhase, from.Label())
	}

	to := State{Phase: from.Phase - 1}
	p := newPatch(order)
	p.clear(clearedOnExit[from.Phase]...)
	p.clear(clearedOnEntry[to.Phase]...)
	p.setStatus(to)
	p.touch(m.now())

	commentID, err := m.comments.LogRetreat(ctx, RetreatComment{
		OrderID: order.ID,
		From:    from.Label(),
		To:      to.Label(),
		Reason:  reason,
		Author:  actor,
	})
	if err != nil {
		m.logger.Error("Failed to log retreat comment",
			zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: could not record the reason: %v", ErrPersistence, err)
	}
	tr, err := m.commit(ctx, order, p, from, to, fmt.Sprintf("Order returned to %s", to.Label()))
	if err != nil {
		if derr := m.comments.DiscardRetreat(ctx, commentID); derr != nil {
			m.logger.Error("Failed to discard retreat comment",
				zap.String("order_id", order.ID), zap.String("comment_id", commentID), zap.Error(derr))
		}
		return nil, err
	}
	return tr, nil
}

// Finalize closes a delivered order.
func (m *Machine) Finalize(ctx context.Context, order *models.Order, actor string) (*Transition, error) {
	from, err := StateOf(order)
	if err != nil {
		return nil, err
	}
	if from.Phase != PhaseDelivery {
		return nil, fmt.Errorf("%w: only orders in Delivery can be finalized, this one is %s", ErrInvalidTransition, from.Label())
	}

	now := m.now()
	to := State{Phase: PhaseFinished}
	p := newPatch(order)
	p.stamp(FieldDeliveryDate, now)
	p.assign(FieldTechDelivery, actor)
	p.setStatus(to)
	p.touch(now)
	return m.commit(ctx, order, p, from, to, "Order finalized")
}

func (m *Machine) flowState(order *models.Order) (State, error) {
	s, err := StateOf(order)
	if err != nil {
		return State{}, err
	}
	if !s.InFlow() {
		return State{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, s.Label())
	}
	return s, nil
}

// commit writes the patch and, only once the write succeeded, copies it onto
// the caller's order.
func (m *Machine) commit(ctx context.Context, order *models.Order, p *patch, from, to State, message string) (*Transition, error) {
	if err := m.store.UpdateOrderFields(ctx, order.ID, p.columns); err != nil {
		m.logger.Error("Failed to persist transition",
			zap.String("order_id", order.ID),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	*order = *p.order

	m.logger.Info("Order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	if m.notifier != nil {
		if err := m.notifier.PhaseChanged(ctx, order.Clone(), from, to); err != nil {
			m.logger.Warn("Failed to dispatch phase notification",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return &Transition{From: from, To: to, Message: message, Columns: p.columns}, nil
}
