package workflow

import "github.com/kendall-kelly/repairshop-api/models"

// Permissions is every gating predicate evaluated for one order.
type Permissions struct {
	Status                   Status `json:"status"`
	Label                    string `json:"label"`
	Ordinal                  int    `json:"ordinal"`
	CanAdvance               bool   `json:"can_advance"`
	CanRetreat               bool   `json:"can_retreat"`
	CanFinalize              bool   `json:"can_finalize"`
	CanEditGeneralFields     bool   `json:"can_edit_general_fields"`
	CanEditLineItems         bool   `json:"can_edit_line_items"`
	CanEditQuotationFields   bool   `json:"can_edit_quotation_fields"`
	CanSendQuotationToClient bool   `json:"can_send_quotation_to_client"`
	CanRecordClientDecision  bool   `json:"can_record_client_decision"`
}

// PermissionsFor evaluates all predicates. An unknown status yields all false.
func PermissionsFor(o *models.Order) Permissions {
	s, err := StateOf(o)
	if err != nil {
		return Permissions{Status: Status(o.CurrentStatus), Ordinal: -1}
	}
	return Permissions{
		Status:                   s.Status(),
		Label:                    s.Label(),
		Ordinal:                  s.Ordinal(),
		CanAdvance:               CanAdvance(o),
		CanRetreat:               CanRetreat(o),
		CanFinalize:              CanFinalize(o),
		CanEditGeneralFields:     CanEditGeneralFields(o),
		CanEditLineItems:         CanEditLineItems(o),
		CanEditQuotationFields:   CanEditQuotationFields(o),
		CanSendQuotationToClient: CanSendQuotationToClient(o),
		CanRecordClientDecision:  CanRecordClientDecision(o),
	}
}

func stateOrZero(o *models.Order) (State, bool) {
	s, err := StateOf(o)
	return s, err == nil
}

// CanRetreat reports whether the order is past Reception in the linear flow.
func CanRetreat(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && s.Ordinal() > 0
}

// CanAdvance is false for holds regardless of any other field.
func CanAdvance(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && !s.Held() && s.InFlow() && s.Ordinal() < LastOrdinal
}

// CanFinalize is true only in Delivery.
func CanFinalize(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && s.Phase == PhaseDelivery
}

// CanEditGeneralFields covers the note and other order-level fields. Any
// Quotation state qualifies once the quotation has been started.
func CanEditGeneralFields(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && s.Phase == PhaseQuotation && o.StartQuotation != nil
}

func quotationOpen(o *models.Order) bool {
	s, ok := stateOrZero(o)
	if !ok || s.Phase != PhaseQuotation || s.Hold == HoldAwaitingAcceptance {
		return false
	}
	return !approved(o)
}

// CanEditLineItems is true while the quotation is open and not approved.
func CanEditLineItems(o *models.Order) bool {
	return quotationOpen(o)
}

// CanEditQuotationFields gates shipping price and the rework flag.
func CanEditQuotationFields(o *models.Order) bool {
	return quotationOpen(o)
}

// CanToggleStock allows recording part arrivals in Quotation and
// AwaitingParts, approved or not.
func CanToggleStock(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && s.Phase == PhaseQuotation && s.Hold != HoldAwaitingAcceptance
}

// CanSendQuotationToClient needs a started quotation that was neither sent nor approved.
func CanSendQuotationToClient(o *models.Order) bool {
	return quotationOpen(o) && o.QuoteSentAt == nil && o.StartQuotation != nil
}

// CanRecordClientDecision is true while the quote awaits the client.
func CanRecordClientDecision(o *models.Order) bool {
	s, ok := stateOrZero(o)
	return ok && s.Phase == PhaseQuotation && s.Hold == HoldAwaitingAcceptance
}

func approved(o *models.Order) bool {
	return o.ClientApproved != nil && *o.ClientApproved
}
