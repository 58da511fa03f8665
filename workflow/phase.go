package workflow

import (
	"fmt"

	"github.com/kendall-kelly/repairshop-api/models"
)

// Phase is a step of the repair workflow, or one of the states outside it.
type Phase int

const (
	PhaseReception Phase = iota
	PhaseDiagnosis
	PhaseQuotation
	PhaseRepair
	PhaseDelivery
	PhaseFinished
	PhaseWarehouse
	PhaseScrapped
)

// Hold is a Quotation sub-state. Holds block Advance but share the Quotation
// step on the stepper.
type Hold int

const (
	HoldNone Hold = iota
	HoldAwaitingParts
	HoldAwaitingAcceptance
)

// Status is the value stored in orders.current_status
type Status string

const (
	StatusReception          Status = "reception"
	StatusDiagnosis          Status = "diagnosis"
	StatusQuotation          Status = "quotation"
	StatusAwaitingParts      Status = "awaiting_parts"
	StatusAwaitingAcceptance Status = "awaiting_acceptance"
	StatusRepair             Status = "repair"
	StatusDelivery           Status = "delivery"
	StatusFinished           Status = "finished"
	StatusWarehouse          Status = "warehouse"
	StatusScrapped           Status = "scrapped"
)

// Step describes one position of the linear workflow.
type Step struct {
	Phase   Phase  `json:"-"`
	ID      Status `json:"id"`
	Label   string `json:"label"`
	Ordinal int    `json:"ordinal"`
}

// Steps is the canonical sequence; index equals ordinal.
var Steps = []Step{
	{Phase: PhaseReception, ID: StatusReception, Label: "Reception", Ordinal: 0},
	{Phase: PhaseDiagnosis, ID: StatusDiagnosis, Label: "Diagnosis", Ordinal: 1},
	{Phase: PhaseQuotation, ID: StatusQuotation, Label: "Quotation", Ordinal: 2},
	{Phase: PhaseRepair, ID: StatusRepair, Label: "Repair", Ordinal: 3},
	{Phase: PhaseDelivery, ID: StatusDelivery, Label: "Delivery", Ordinal: 4},
}

// LastOrdinal is the ordinal of Delivery
const LastOrdinal = 4

// State is a decoded status: the phase plus, for Quotation, its hold.
type State struct {
	Phase Phase
	Hold  Hold
}

type stateInfo struct {
	state State
	label string
}

var statuses = map[Status]stateInfo{
	StatusReception:          {State{Phase: PhaseReception}, "Reception"},
	StatusDiagnosis:          {State{Phase: PhaseDiagnosis}, "Diagnosis"},
	StatusQuotation:          {State{Phase: PhaseQuotation}, "Quotation"},
	StatusAwaitingParts:      {State{Phase: PhaseQuotation, Hold: HoldAwaitingParts}, "Awaiting Parts"},
	StatusAwaitingAcceptance: {State{Phase: PhaseQuotation, Hold: HoldAwaitingAcceptance}, "Awaiting Acceptance"},
	StatusRepair:             {State{Phase: PhaseRepair}, "Repair"},
	StatusDelivery:           {State{Phase: PhaseDelivery}, "Delivery"},
	StatusFinished:           {State{Phase: PhaseFinished}, "Finished"},
	StatusWarehouse:          {State{Phase: PhaseWarehouse}, "Warehouse"},
	StatusScrapped:           {State{Phase: PhaseScrapped}, "Scrapped"},
}

// ParseStatus decodes a stored status string.
func ParseStatus(s string) (State, error) {
	info, ok := statuses[Status(s)]
	if !ok {
		return State{}, fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return info.state, nil
}

// StateOf decodes the order's current status.
func StateOf(o *models.Order) (State, error) {
	return ParseStatus(o.CurrentStatus)
}

// Status encodes the state back to its stored form.
func (s State) Status() Status {
	for status, info := range statuses {
		if info.state == s {
			return status
		}
	}
	return ""
}

// Label is the human-readable status name used in messages.
func (s State) Label() string {
	return statuses[s.Status()].label
}

// InFlow reports whether the state is one of the five linear steps.
func (s State) InFlow() bool {
	return s.Phase <= PhaseDelivery
}

// Held reports whether the order sits in a Quotation sub-state.
func (s State) Held() bool {
	return s.Hold != HoldNone
}

// Ordinal is the stepper position, or -1 outside the linear flow.
func (s State) Ordinal() int {
	if !s.InFlow() {
		return -1
	}
	return int(s.Phase)
}

// Step returns the stepper entry the state is displayed on.
func (s State) Step() (Step, bool) {
	o := s.Ordinal()
	if o < 0 {
		return Step{}, false
	}
	return Steps[o], true
}

func (s State) String() string {
	return string(s.Status())
}

func (p Phase) String() string {
	if p <= PhaseDelivery {
		return Steps[p].Label
	}
	return State{Phase: p}.Label()
}
