package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	err     error
	updates []map[string]interface{}
}

func (s *fakeStore) UpdateOrderFields(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, fields)
	return nil
}

func (s *fakeStore) last() map[string]interface{} {
	if len(s.updates) == 0 {
		return nil
	}
	return s.updates[len(s.updates)-1]
}

type fakeComments struct {
	err       error
	comments  []RetreatComment
	discarded []string
}

func (c *fakeComments) LogRetreat(ctx context.Context, rc RetreatComment) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.comments = append(c.comments, rc)
	return fmt.Sprintf("comment-%d", len(c.comments)), nil
}

func (c *fakeComments) DiscardRetreat(ctx context.Context, id string) error {
	c.discarded = append(c.discarded, id)
	return nil
}

type fakeNotifier struct {
	err    error
	events []State
}

func (n *fakeNotifier) PhaseChanged(ctx context.Context, order *models.Order, from, to State) error {
	n.events = append(n.events, to)
	return n.err
}

var errDown = errors.New("backend unavailable")

func newTestMachine() (*Machine, *fakeStore, *fakeComments, *fakeNotifier) {
	store := &fakeStore{}
	comments := &fakeComments{}
	notifier := &fakeNotifier{}
	m := NewMachine(store, comments, notifier, nil).WithClock(func() time.Time { return fixedNow })
	return m, store, comments, notifier
}

func orderAt(status Status) *models.Order {
	start := fixedNow.Add(-24 * time.Hour)
	return &models.Order{
		ID:             "order-1",
		Code:           "OT-0001",
		CurrentStatus:  string(status),
		StartReception: &start,
	}
}

func line(qty int, unit, discount, vat string, inStock bool) models.QuotationLine {
	return models.QuotationLine{
		Code:        "P-1",
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(unit),
		DiscountPct: decimal.RequireFromString(discount),
		VATPct:      decimal.RequireFromString(vat),
		InStock:     inStock,
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }
