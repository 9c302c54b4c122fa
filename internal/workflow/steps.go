package workflow

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Step int

const (
	StepSelectCustomer Step = iota
	StepSelectLocationUnit
	StepSelectPeriod
	StepSummary
)

func (s Step) String() string {
	switch s {
	case StepSelectCustomer:
		return "select_customer"
	case StepSelectLocationUnit:
		return "select_location_unit"
	case StepSelectPeriod:
		return "select_period"
	case StepSummary:
		return "summary"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

type Flow string

const (
	// FlowStaff is the in-person flow run by an employee on behalf of a customer.
	FlowStaff Flow = "staff"
	// FlowSelfService is the online flow; the customer is the session's own user.
	FlowSelfService Flow = "self_service"
)

func (f Flow) Valid() bool {
	return f == FlowStaff || f == FlowSelfService
}

// Steps lists the linear step sequence of the flow.
func (f Flow) Steps() []Step {
	if f == FlowStaff {
		return []Step{StepSelectCustomer, StepSelectLocationUnit, StepSelectPeriod, StepSummary}
	}
	return []Step{StepSelectLocationUnit, StepSelectPeriod, StepSummary}
}

func ParseFlow(s string) (Flow, error) {
	f := Flow(s)
	if !f.Valid() {
		return "", errors.Newf("unknown flow %q", s)
	}
	return f, nil
}
