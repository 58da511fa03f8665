package workflow

import (
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
)

// Field is an orders column touched by a transition
type Field string

const (
	FieldEndReception     Field = "end_reception"
	FieldTechReception    Field = "tech_reception"
	FieldStartDiagnosis   Field = "start_diagnosis"
	FieldEndDiagnosis     Field = "end_diagnosis"
	FieldTechDiagnosis    Field = "tech_diagnosis"
	FieldStartQuotation   Field = "start_quotation"
	FieldApprovalDate     Field = "approval_date"
	FieldTechQuotation    Field = "tech_quotation"
	FieldPartsRequestedAt Field = "parts_requested_at"
	FieldPartsReceivedAt  Field = "parts_received_at"
	FieldQuoteSentAt      Field = "quote_sent_at"
	FieldClientDecisionAt Field = "client_decision_at"
	FieldStartRepair      Field = "start_repair"
	FieldEndRepair        Field = "end_repair"
	FieldTechRepair       Field = "tech_repair"
	FieldDeliveryDate     Field = "delivery_date"
	FieldTechDelivery     Field = "tech_delivery"
)

var timeFields = map[Field]func(*models.Order) **time.Time{
	FieldEndReception:     func(o *models.Order) **time.Time { return &o.EndReception },
	FieldStartDiagnosis:   func(o *models.Order) **time.Time { return &o.StartDiagnosis },
	FieldEndDiagnosis:     func(o *models.Order) **time.Time { return &o.EndDiagnosis },
	FieldStartQuotation:   func(o *models.Order) **time.Time { return &o.StartQuotation },
	FieldApprovalDate:     func(o *models.Order) **time.Time { return &o.ApprovalDate },
	FieldPartsRequestedAt: func(o *models.Order) **time.Time { return &o.PartsRequestedAt },
	FieldPartsReceivedAt:  func(o *models.Order) **time.Time { return &o.PartsReceivedAt },
	FieldQuoteSentAt:      func(o *models.Order) **time.Time { return &o.QuoteSentAt },
	FieldClientDecisionAt: func(o *models.Order) **time.Time { return &o.ClientDecisionAt },
	FieldStartRepair:      func(o *models.Order) **time.Time { return &o.StartRepair },
	FieldEndRepair:        func(o *models.Order) **time.Time { return &o.EndRepair },
	FieldDeliveryDate:     func(o *models.Order) **time.Time { return &o.DeliveryDate },
}

var techFields = map[Field]func(*models.Order) **string{
	FieldTechReception: func(o *models.Order) **string { return &o.TechReception },
	FieldTechDiagnosis: func(o *models.Order) **string { return &o.TechDiagnosis },
	FieldTechQuotation: func(o *models.Order) **string { return &o.TechQuotation },
	FieldTechRepair:    func(o *models.Order) **string { return &o.TechRepair },
	FieldTechDelivery:  func(o *models.Order) **string { return &o.TechDelivery },
}

// Fields nulled when an order leaves a phase backwards. Repair keeps its
// technician so the same person resumes the job.
var clearedOnExit = map[Phase][]Field{
	PhaseDiagnosis: {FieldStartDiagnosis, FieldEndDiagnosis, FieldTechDiagnosis},
	PhaseQuotation: {FieldStartQuotation, FieldApprovalDate, FieldTechQuotation, FieldPartsRequestedAt, FieldPartsReceivedAt},
	PhaseRepair:    {FieldStartRepair, FieldEndRepair},
	PhaseDelivery:  {FieldDeliveryDate, FieldTechDelivery},
}

// Fields nulled when a retreat reopens a phase. Parts timestamps and the
// repair technician are never part of this set.
var clearedOnEntry = map[Phase][]Field{
	PhaseReception: {FieldEndReception, FieldTechReception},
	PhaseDiagnosis: {FieldEndDiagnosis, FieldTechDiagnosis},
	PhaseQuotation: {FieldApprovalDate, FieldTechQuotation},
	PhaseRepair:    {FieldEndRepair},
}

// ClearedOnExit lists the fields a retreat out of p nulls.
func ClearedOnExit(p Phase) []Field {
	return append([]Field(nil), clearedOnExit[p]...)
}

// ClearedOnEntry lists the fields a retreat into p nulls.
func ClearedOnEntry(p Phase) []Field {
	return append([]Field(nil), clearedOnEntry[p]...)
}

// patch accumulates column updates while mirroring them on a working copy of
// the order, so a failed write leaves the caller's order untouched.
type patch struct {
	order   *models.Order
	columns map[string]interface{}
}

func newPatch(o *models.Order) *patch {
	return &patch{order: o.Clone(), columns: make(map[string]interface{})}
}

func (p *patch) stamp(f Field, t time.Time) {
	v := t
	*timeFields[f](p.order) = &v
	p.columns[string(f)] = t
}

func (p *patch) assign(f Field, actor string) {
	v := actor
	*techFields[f](p.order) = &v
	p.columns[string(f)] = actor
}

func (p *patch) clear(fields ...Field) {
	for _, f := range fields {
		if get, ok := timeFields[f]; ok {
			*get(p.order) = nil
		} else if get, ok := techFields[f]; ok {
			*get(p.order) = nil
		}
		p.columns[string(f)] = nil
	}
}

func (p *patch) setStatus(s State) {
	p.order.CurrentStatus = string(s.Status())
	p.columns["current_status"] = p.order.CurrentStatus
}

func (p *patch) setApproval(accepted bool) {
	v := accepted
	p.order.ClientApproved = &v
	p.columns["client_approved"] = accepted
}

func (p *patch) setTotal(total decimal.Decimal) {
	p.order.Total = total
	p.columns["total"] = total
}

func (p *patch) merge(pending Pending) {
	if pending.Total != nil {
		p.setTotal(*pending.Total)
	}
	if pending.ShippingPrice != nil {
		p.order.ShippingPrice = *pending.ShippingPrice
		p.columns["shipping_price"] = *pending.ShippingPrice
	}
	if pending.Note != nil {
		p.order.Note = *pending.Note
		p.columns["note"] = *pending.Note
	}
}

func (p *patch) touch(t time.Time) {
	p.order.UpdatedAt = t
	p.columns["updated_at"] = t
}
